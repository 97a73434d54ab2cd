package slackbot

import (
	"labelbot/internal/config"
)

type Config = config.Config
