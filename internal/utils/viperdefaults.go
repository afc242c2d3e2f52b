package utils

import "github.com/spf13/viper"

// Set the viper defaults for an auricle pipeline.
// For use in cmd/auricle, as well as tests that stand up a full pipeline.
func SetViperDefaults() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("logfile", "")
	viper.SetDefault("samplerate", 44100)
	viper.SetDefault("poolbuffers", 16)
	viper.SetDefault("poolbuffersize", 4096)
	viper.SetDefault("outframes", 2048)
	viper.SetDefault("soundsdir", "sounds")
	viper.SetDefault("volume", 90)
	viper.SetDefault("eq", []int{0, 0, 0})
}
