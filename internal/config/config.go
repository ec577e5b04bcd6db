// Package config loads devicemgr.Options from the environment (and an
// optional config file), following the viper-based loading idiom in
// eddielth-data-trans/config/config.go, adapted from YAML-file-only to
// environment-variable-first per spec.md §6's recognised option names.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	dm "github.com/fleetctl/devicemgr"
)

// Load builds devicemgr.Options from environment variables, falling back
// to spec.md §6's documented defaults for anything unset. configPath, if
// non-empty, is read as an optional YAML/JSON/TOML overlay beneath the
// environment (env wins).
func Load(configPath string) (dm.Options, error) {
	v := viper.New()
	v.SetEnvPrefix("DEVICEMGR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	opts := dm.DefaultOptions()
	v.SetDefault("listen_host", opts.ListenHost)
	v.SetDefault("listen_port", opts.ListenPort)
	v.SetDefault("heartbeat_timeout_seconds", int(opts.HeartbeatTimeout/time.Second))
	v.SetDefault("reaper_interval_seconds", int(opts.ReaperInterval/time.Second))
	v.SetDefault("command_ack_timeout_seconds", int(opts.CommandAckTimeout/time.Second))
	v.SetDefault("audio_sample_rate", opts.AudioSampleRate)
	v.SetDefault("prefix_phrases", opts.PrefixPhrases)
	v.SetDefault("confidence_threshold", opts.ConfidenceThreshold)
	v.SetDefault("outbound_queue_capacity", opts.OutboundQueueCap)
	v.SetDefault("audio_chunk_size", opts.AudioChunkSize)
	v.SetDefault("database_url", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return dm.Options{}, err
		}
	}

	opts.ListenHost = v.GetString("listen_host")
	opts.ListenPort = v.GetInt("listen_port")
	opts.HeartbeatTimeout = time.Duration(v.GetInt("heartbeat_timeout_seconds")) * time.Second
	opts.ReaperInterval = time.Duration(v.GetInt("reaper_interval_seconds")) * time.Second
	opts.CommandAckTimeout = time.Duration(v.GetInt("command_ack_timeout_seconds")) * time.Second
	opts.AudioSampleRate = v.GetInt("audio_sample_rate")
	opts.PrefixPhrases = v.GetStringSlice("prefix_phrases")
	opts.ConfidenceThreshold = v.GetFloat64("confidence_threshold")
	opts.OutboundQueueCap = v.GetInt("outbound_queue_capacity")
	opts.AudioChunkSize = v.GetInt("audio_chunk_size")
	opts.DatabaseURL = v.GetString("database_url")

	return opts, nil
}
