package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Game     GameConfig     `mapstructure:"game"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int    `mapstructure:"expire"` // hours
}

// GameConfig is the recognized game tuning surface.
type GameConfig struct {
	TurnSeconds            int `mapstructure:"turnSeconds"`
	HeartbeatSeconds       int `mapstructure:"heartbeatSeconds"`
	HeartbeatBufferSeconds int `mapstructure:"heartbeatBufferSeconds"`
	SurrenderPenalty       int `mapstructure:"surrenderPenalty"`
	EscapePenalty          int `mapstructure:"escapePenalty"`
	MaxOfflineTimeouts     int `mapstructure:"maxOfflineTimeouts"`
	ActiveStateTTLSeconds  int `mapstructure:"activeStateTtlSeconds"`
	SettledTTLMinutes      int `mapstructure:"settledTtlMinutes"`
}

func (g GameConfig) TurnDuration() time.Duration {
	return time.Duration(g.TurnSeconds) * time.Second
}

func (g GameConfig) HeartbeatTTL() time.Duration {
	return time.Duration(g.HeartbeatSeconds) * time.Second
}

func (g GameConfig) HeartbeatWindow() time.Duration {
	return time.Duration(g.HeartbeatSeconds+g.HeartbeatBufferSeconds) * time.Second
}

func (g GameConfig) ActiveStateTTL() time.Duration {
	return time.Duration(g.ActiveStateTTLSeconds) * time.Second
}

func (g GameConfig) SettledRetention() time.Duration {
	return time.Duration(g.SettledTTLMinutes) * time.Minute
}

var GlobalConfig *Config

func LoadConfig(path string) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	setGameDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file, %s", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
	GlobalConfig = &cfg
}

func setGameDefaults() {
	viper.SetDefault("game.turnSeconds", 20)
	viper.SetDefault("game.heartbeatSeconds", 30)
	viper.SetDefault("game.heartbeatBufferSeconds", 10)
	viper.SetDefault("game.surrenderPenalty", 100)
	viper.SetDefault("game.escapePenalty", 200)
	viper.SetDefault("game.maxOfflineTimeouts", 2)
	viper.SetDefault("game.activeStateTtlSeconds", 3600)
	viper.SetDefault("game.settledTtlMinutes", 5)
}
