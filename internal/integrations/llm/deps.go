package llm

import (
	"labelbot/internal/config"
	"labelbot/internal/httpx"
)

type Config = config.Config

var externalHTTPClient = httpx.ExternalHTTPClient()
