package config

const (
	EnvPrefix = "LASTMILE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "LASTMILE_APP_ENV"
	EnvPort      = "LASTMILE_APP_PORT"
	EnvDBDSN     = "LASTMILE_DB_DSN"
	EnvDBHost    = "LASTMILE_DB_HOST"
	EnvDBUser    = "LASTMILE_DB_USER"
	EnvDBName    = "LASTMILE_DB_NAME"
	EnvRedisURL  = "LASTMILE_REDIS_URL"
	EnvRedisAddr = "LASTMILE_REDIS_ADDR"

	EnvJWTSecret = "LASTMILE_JWT_SECRET"
	EnvJWTIssuer = "LASTMILE_JWT_ISSUER"

	EnvOTPLength       = "LASTMILE_OTP_LENGTH"
	EnvOTPTTL          = "LASTMILE_OTP_TTL"
	EnvOTPMaxAttempts  = "LASTMILE_OTP_MAX_ATTEMPTS"
	EnvOTPSendLimit    = "LASTMILE_OTP_SEND_LIMIT"
	EnvOTPSendWindow   = "LASTMILE_OTP_SEND_WINDOW"
	EnvAgentRatePerKM  = "LASTMILE_AGENT_RATE_PER_KM"
	EnvPlatformFeeRate = "LASTMILE_PLATFORM_FEE_RATE"
	EnvTaxRate         = "LASTMILE_TAX_RATE"
)
