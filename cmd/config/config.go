package config

import (
	"log/slog"

	"github.com/spf13/viper"

	"github.com/auricle-audio/auricle/internal/utils"
)

func LoadConfig(configFilePath string) {
	utils.SetViperDefaults()

	viper.SetConfigFile(configFilePath)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Info("no config file found", "configFilePath", configFilePath)
		} else {
			slog.Error("error during config read", "err", err)
			panic(err)
		}
	}
}
