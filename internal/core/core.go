// Package core contains the main struct of the software.
package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"reflect"

	"github.com/alecthomas/kong"
	pwebrtc "github.com/pion/webrtc/v4"

	"github.com/streamsight/streamsight/internal/conf"
	"github.com/streamsight/streamsight/internal/confwatcher"
	"github.com/streamsight/streamsight/internal/defs"
	"github.com/streamsight/streamsight/internal/detector"
	"github.com/streamsight/streamsight/internal/logger"
	"github.com/streamsight/streamsight/internal/relay"
	"github.com/streamsight/streamsight/internal/servers/observer"
	"github.com/streamsight/streamsight/internal/servers/rtc"
)

var version = "v0.0.0"

var cli struct {
	Version  bool   `help:"print version"`
	Confpath string `arg:"" default:"streamsight.yml"`
}

func iceServers(cnf *conf.Conf) []pwebrtc.ICEServer {
	var ret []pwebrtc.ICEServer

	if cnf.STUNServer != "" {
		ret = append(ret, pwebrtc.ICEServer{
			URLs: []string{cnf.STUNServer},
		})
	}

	if len(cnf.TURNServers) != 0 {
		ret = append(ret, pwebrtc.ICEServer{
			URLs:       cnf.TURNServers,
			Username:   cnf.TURNUsername,
			Credential: cnf.TURNPassword,
		})
	}

	return ret
}

func defaultIdentity(cnf *conf.Conf) defs.StreamIdentity {
	return defs.StreamIdentity{
		Source:    cnf.DefaultSource,
		VideoPath: cnf.DefaultVideoPath,
		CameraID:  cnf.DefaultCameraID,
		Loop:      cnf.LoopVideo,
	}
}

// Core is an instance of StreamSight.
type Core struct {
	ctx            context.Context
	ctxCancel      func()
	confPath       string
	conf           *conf.Conf
	confFound      bool
	logger         *logger.Logger
	detector       *detector.DNN
	relay          *relay.Registry
	rtcServer      *rtc.Server
	observerServer *observer.Server
	confWatcher    *confwatcher.ConfWatcher

	// out
	done chan struct{}
}

// New allocates a Core.
func New(args []string) (*Core, bool) {
	parser, err := kong.New(&cli,
		kong.Description("StreamSight "+version),
		kong.UsageOnError(),
		kong.ValueFormatter(func(value *kong.Value) string {
			switch value.Name {
			case "confpath":
				return "path to a config file. The default is streamsight.yml."

			default:
				return kong.DefaultHelpValueFormatter(value)
			}
		}))
	if err != nil {
		panic(err)
	}

	_, err = parser.Parse(args)
	parser.FatalIfErrorf(err)

	if cli.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	p := &Core{
		ctx:       ctx,
		ctxCancel: ctxCancel,
		confPath:  cli.Confpath,
		done:      make(chan struct{}),
	}

	p.conf, p.confFound, err = conf.Load(p.confPath)
	if err != nil {
		fmt.Printf("ERR: %s\n", err)
		return nil, false
	}

	err = p.createResources(true)
	if err != nil {
		if p.logger != nil {
			p.Log(logger.Error, "%s", err)
		} else {
			fmt.Printf("ERR: %s\n", err)
		}
		p.closeResources(nil)
		return nil, false
	}

	go p.run()

	return p, true
}

// Close closes Core and waits for all goroutines to return.
func (p *Core) Close() {
	p.ctxCancel()
	<-p.done
}

// Wait waits for the Core to exit.
func (p *Core) Wait() {
	<-p.done
}

// Log implements logger.Writer.
func (p *Core) Log(level logger.Level, format string, args ...interface{}) {
	p.logger.Log(level, format, args...)
}

func (p *Core) run() {
	defer close(p.done)

	confChanged := func() chan struct{} {
		if p.confWatcher != nil {
			return p.confWatcher.Watch()
		}
		return make(chan struct{})
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

outer:
	for {
		select {
		case <-confChanged:
			p.Log(logger.Info, "reloading configuration (file changed)")

			newConf, _, err := conf.Load(p.confPath)
			if err != nil {
				p.Log(logger.Error, "%s", err)
				break outer
			}

			err = p.reloadConf(newConf)
			if err != nil {
				p.Log(logger.Error, "%s", err)
				break outer
			}

		case <-interrupt:
			p.Log(logger.Info, "shutting down gracefully")
			break outer

		case <-p.ctx.Done():
			break outer
		}
	}

	p.ctxCancel()

	p.closeResources(nil)
}

func (p *Core) createResources(initial bool) error {
	var err error

	if p.logger == nil {
		p.logger, err = logger.New(
			logger.Level(p.conf.LogLevel),
			p.conf.LogDestinations,
			p.conf.LogFile,
		)
		if err != nil {
			return err
		}
	}

	if initial {
		p.Log(logger.Info, "StreamSight %s", version)
		if !p.confFound {
			p.Log(logger.Warn, "configuration file not found, using defaults")
		}
	}

	if p.detector == nil && p.conf.ModelPath != "" {
		det := &detector.DNN{
			ModelPath:     p.conf.ModelPath,
			ConfigPath:    p.conf.ModelConfigPath,
			MinConfidence: p.conf.DetectionConfidence,
		}
		err = det.Initialize()
		if err != nil {
			// streaming keeps working without detection
			var uerr detector.UnavailableError
			if !errors.As(err, &uerr) {
				return err
			}
			p.Log(logger.Warn, "detector unavailable, streaming without detection: %s", err)
		} else {
			p.detector = det
		}
	}

	if p.relay == nil {
		p.relay = &relay.Registry{
			FallbackFrameRate: p.conf.FrameRate,
			Detector:          p.detectorOrNil(),
			Parent:            p,
		}
		p.relay.Initialize()
	}

	if p.rtcServer == nil {
		p.rtcServer = &rtc.Server{
			Address:          p.conf.HTTPAddress,
			ReadTimeout:      p.conf.ReadTimeout,
			WriteTimeout:     p.conf.WriteTimeout,
			AllowOrigin:      p.conf.AllowOrigin,
			ICEServers:       iceServers(p.conf),
			HandshakeTimeout: p.conf.HandshakeTimeout,
			Relay:            p.relay,
			DefaultIdentity:  defaultIdentity(p.conf),
			DetectorLoaded:   p.detector != nil,
			Parent:           p,
		}
		err = p.rtcServer.Initialize()
		if err != nil {
			return err
		}
	}

	if p.observerServer == nil {
		p.observerServer = &observer.Server{
			Address:      p.conf.ObserverAddress,
			ReadTimeout:  p.conf.ReadTimeout,
			WriteTimeout: p.conf.WriteTimeout,
			Source:       p.rtcServer,
			Parent:       p,
		}
		err = p.observerServer.Initialize()
		if err != nil {
			return err
		}
	}

	if initial && p.confFound {
		p.confWatcher, err = confwatcher.New(p.confPath)
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *Core) detectorOrNil() detector.Detector {
	if p.detector == nil {
		return nil
	}
	return p.detector
}

func (p *Core) closeResources(newConf *conf.Conf) {
	closeLogger := newConf == nil ||
		!reflect.DeepEqual(newConf.LogDestinations, p.conf.LogDestinations) ||
		newConf.LogFile != p.conf.LogFile

	closeDetector := newConf == nil ||
		newConf.ModelPath != p.conf.ModelPath ||
		newConf.ModelConfigPath != p.conf.ModelConfigPath ||
		newConf.DetectionConfidence != p.conf.DetectionConfidence

	closeRelay := newConf == nil ||
		newConf.FrameRate != p.conf.FrameRate ||
		closeDetector

	closeRTCServer := newConf == nil ||
		newConf.HTTPAddress != p.conf.HTTPAddress ||
		newConf.ReadTimeout != p.conf.ReadTimeout ||
		newConf.WriteTimeout != p.conf.WriteTimeout ||
		newConf.AllowOrigin != p.conf.AllowOrigin ||
		newConf.STUNServer != p.conf.STUNServer ||
		!reflect.DeepEqual(newConf.TURNServers, p.conf.TURNServers) ||
		newConf.TURNUsername != p.conf.TURNUsername ||
		newConf.TURNPassword != p.conf.TURNPassword ||
		newConf.HandshakeTimeout != p.conf.HandshakeTimeout ||
		newConf.DefaultSource != p.conf.DefaultSource ||
		newConf.DefaultVideoPath != p.conf.DefaultVideoPath ||
		newConf.DefaultCameraID != p.conf.DefaultCameraID ||
		newConf.LoopVideo != p.conf.LoopVideo ||
		closeRelay

	closeObserverServer := newConf == nil ||
		newConf.ObserverAddress != p.conf.ObserverAddress ||
		newConf.ReadTimeout != p.conf.ReadTimeout ||
		newConf.WriteTimeout != p.conf.WriteTimeout ||
		closeRTCServer

	if newConf == nil && p.confWatcher != nil {
		p.confWatcher.Close()
		p.confWatcher = nil
	}

	// observers detach first, then sessions, then streams
	if closeObserverServer && p.observerServer != nil {
		p.observerServer.Close()
		p.observerServer = nil
	}

	if closeRTCServer && p.rtcServer != nil {
		p.rtcServer.Close()
		p.rtcServer = nil
	}

	if closeRelay && p.relay != nil {
		p.relay.Close()
		p.relay = nil
	}

	if closeDetector && p.detector != nil {
		p.detector.Close()
		p.detector = nil
	}

	if closeLogger && p.logger != nil {
		p.logger.Close()
		p.logger = nil
	}
}

func (p *Core) reloadConf(newConf *conf.Conf) error {
	p.closeResources(newConf)
	p.conf = newConf
	return p.createResources(false)
}
