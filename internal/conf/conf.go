// Package conf contains the struct that holds the configuration of the software.
package conf

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/streamsight/streamsight/internal/logger"
)

// Conf is the program configuration.
type Conf struct {
	// logging
	LogLevel        LogLevel        `yaml:"logLevel"`
	LogDestinations LogDestinations `yaml:"logDestinations"`
	LogFile         string          `yaml:"logFile"`

	// HTTP API
	HTTPAddress  string        `yaml:"httpAddress"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	AllowOrigin  string        `yaml:"allowOrigin"`

	// observers
	ObserverAddress string `yaml:"observerAddress"`

	// negotiation
	STUNServer       string        `yaml:"stunServer"`
	TURNServers      []string      `yaml:"turnServers"`
	TURNUsername     string        `yaml:"turnUsername"`
	TURNPassword     string        `yaml:"turnPassword"`
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`

	// detection
	ModelPath           string  `yaml:"modelPath"`
	ModelConfigPath     string  `yaml:"modelConfigPath"`
	DetectionConfidence float64 `yaml:"detectionConfidence"`

	// frame sources
	DefaultSource    SourceType `yaml:"defaultSource"`
	DefaultVideoPath string     `yaml:"defaultVideoPath"`
	DefaultCameraID  int        `yaml:"defaultCameraID"`
	LoopVideo        bool       `yaml:"loopVideo"`
	FrameRate        float64    `yaml:"frameRate"`
}

func (conf *Conf) setDefaults() {
	conf.LogLevel = LogLevel(logger.Info)
	conf.LogDestinations = LogDestinations{logger.DestinationStdout: {}}
	conf.LogFile = "streamsight.log"

	conf.HTTPAddress = ":8080"
	conf.ReadTimeout = 10 * time.Second
	conf.WriteTimeout = 10 * time.Second
	conf.AllowOrigin = "*"

	conf.ObserverAddress = ":8889"

	conf.STUNServer = "stun:stun.l.google.com:19302"
	conf.HandshakeTimeout = 10 * time.Second

	conf.DetectionConfidence = 0.5

	conf.DefaultSource = SourceFile
	conf.DefaultVideoPath = "videos/sample.mp4"
	conf.LoopVideo = true
	conf.FrameRate = 30
}

// CheckAndFillMissing checks the configuration for errors and fills empty fields.
func (conf *Conf) CheckAndFillMissing() error {
	if conf.LogLevel == 0 {
		conf.LogLevel = LogLevel(logger.Info)
	}
	if len(conf.LogDestinations) == 0 {
		conf.LogDestinations = LogDestinations{logger.DestinationStdout: {}}
	}

	if conf.HTTPAddress == "" {
		return fmt.Errorf("httpAddress can't be empty")
	}
	if conf.ObserverAddress == "" {
		return fmt.Errorf("observerAddress can't be empty")
	}
	if conf.ReadTimeout <= 0 {
		return fmt.Errorf("invalid readTimeout: %v", conf.ReadTimeout)
	}
	if conf.WriteTimeout <= 0 {
		return fmt.Errorf("invalid writeTimeout: %v", conf.WriteTimeout)
	}
	if conf.HandshakeTimeout <= 0 {
		return fmt.Errorf("invalid handshakeTimeout: %v", conf.HandshakeTimeout)
	}

	if conf.DetectionConfidence < 0 || conf.DetectionConfidence > 1 {
		return fmt.Errorf("detectionConfidence must be between 0 and 1")
	}

	switch conf.DefaultSource {
	case SourceFile, SourceCamera:
	default:
		return fmt.Errorf("invalid defaultSource: %s", conf.DefaultSource)
	}

	if conf.DefaultSource == SourceFile && conf.DefaultVideoPath == "" {
		return fmt.Errorf("defaultVideoPath can't be empty when defaultSource is 'file'")
	}

	if conf.FrameRate <= 0 {
		return fmt.Errorf("invalid frameRate: %v", conf.FrameRate)
	}

	return nil
}

// Load loads the configuration from a file, then applies
// STREAMSIGHT_-prefixed environment variables on top of it.
// found reports whether the file existed.
func Load(fpath string) (*Conf, bool, error) {
	conf := &Conf{}
	conf.setDefaults()

	found := false
	byts, err := os.ReadFile(fpath)
	switch {
	case err == nil:
		err = yaml.UnmarshalStrict(byts, conf)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", fpath, err)
		}
		found = true

	case os.IsNotExist(err):

	default:
		return nil, false, err
	}

	err = loadFromEnvironment("STREAMSIGHT", conf)
	if err != nil {
		return nil, false, err
	}

	err = conf.CheckAndFillMissing()
	if err != nil {
		return nil, false, err
	}

	return conf, found, nil
}
