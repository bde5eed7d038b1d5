package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grz0zrg/fas"
	"github.com/grz0zrg/fas/capture"
	"github.com/grz0zrg/fas/config"
	"github.com/grz0zrg/fas/engine"
	"github.com/grz0zrg/fas/midictl"
	"github.com/grz0zrg/fas/oto"
	"github.com/grz0zrg/fas/samples"
	"github.com/grz0zrg/fas/server"
	"github.com/grz0zrg/fas/telemetry"
	"github.com/grz0zrg/fas/version"
	"github.com/sirupsen/logrus"
)

// telemetryQueue is the number of frames of notes waiting for the OSC sender.
const telemetryQueue = 16

func main() {
	var info, versionFlag bool
	cfg, _, err := config.Parse("fas", os.Args[1:], func(set *flag.FlagSet) {
		set.BoolVar(&info, "i", false, "Print the audio output information and exit.")
		set.BoolVar(&versionFlag, "v", false, "Print version.")
	})
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	cfg.Validate()
	logrus.SetLevel(cfg.Level())
	log := logrus.WithFields(logrus.Fields{"function": "main"})
	log.Info(version.String("fas"))

	if info {
		printInfo(&cfg)
		os.Exit(0)
	}
	if cfg.Device != -1 {
		log.WithField("device", cfg.Device).Warn("device selection is not supported, using the default output device")
	}

	smps, err := samples.Load(cfg.GrainsDir, cfg.SampleRate)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.WithField("dir", cfg.GrainsDir).Warn("grains directory not found, granular synthesis is silent")
	case err != nil:
		log.WithError(err).Warn("cannot load grains, granular synthesis is silent")
	}

	eng := engine.New(engine.Config{
		SampleRate:    cfg.SampleRate,
		Channels:      cfg.Channels(),
		TickSamples:   cfg.TickSamples(),
		WavetableSize: cfg.WavetableSize,
		FramesQueue:   cfg.FramesQueueSize,
		CommandsQueue: cfg.CommandsQueueSize,
		NoiseAmount:   cfg.NoiseAmount,
		HoldTicks:     cfg.HoldTicks,
	}, smps)

	var audioContext fas.AudioContext
	audioContext, err = oto.NewContext(cfg.SampleRate, cfg.OutputChannels, cfg.Frames)
	if err != nil {
		log.WithError(err).Fatal("could not open the audio output")
	}
	player, err := audioContext.Play(eng)
	if err != nil {
		log.WithError(err).Fatal("could not start the audio stream")
	}
	defer audioContext.Close()
	defer player.Close()

	sessionCfg := server.SessionConfig{
		Cutoff:       float32(cfg.ActivityCutoff),
		PauseTimeout: cfg.PauseTimeout,
	}
	var notes *telemetry.Sender
	if cfg.OSCOut {
		notes = telemetry.Dial(cfg.OSCAddr, cfg.OSCPort, telemetryQueue)
		go notes.Run()
		defer notes.Close(time.Second)
		sessionCfg.Notes = notes
		log.WithFields(logrus.Fields{"addr": cfg.OSCAddr, "port": cfg.OSCPort}).Info("sending notes over OSC")
	}
	if cfg.Record != "" {
		rec, err := capture.Create(cfg.Record)
		if err != nil {
			log.WithError(err).Fatal("could not create the capture file")
		}
		defer rec.Close()
		sessionCfg.Recorder = rec
		log.WithField("file", cfg.Record).Info("recording packets")
	}
	var midi *midictl.Controller
	if cfg.MIDIInput != "" {
		midi = midictl.New(eng, uint8(cfg.GainCC))
		in, err := midictl.Open(cfg.MIDIInput, midi)
		if err != nil {
			log.WithError(err).Warn("MIDI control disabled")
			midi = nil
		} else {
			defer in.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	session := server.NewSession(eng, sessionCfg)
	if cfg.StatsInterval > 0 {
		go logStats(ctx, cfg.StatsInterval, eng, session, notes, midi)
	}
	srv := server.NewServer(session, server.TransportConfig{
		RxBufferSize:  cfg.RxBufferSize,
		MaxPacketSize: cfg.MaxPacketSize,
	})
	if err := srv.ListenAndServe(ctx, cfg.Addr()); err != nil {
		log.WithError(err).Error("server failed")
		stop()
		return
	}
	log.Info("stopped")
}

func printInfo(cfg *config.Config) {
	fmt.Println("audio output: oto, default device")
	fmt.Printf("  format:      float32 little endian\n")
	fmt.Printf("  sample rate: %d Hz\n", cfg.SampleRate)
	fmt.Printf("  channels:    %d (%d synthesis channels)\n", cfg.OutputChannels, cfg.Channels())
	fmt.Printf("  buffer:      %d frames (%v)\n", cfg.Frames, time.Duration(cfg.Frames)*time.Second/time.Duration(cfg.SampleRate))
	fmt.Printf("  tick:        %d samples\n", cfg.TickSamples())
}

func logStats(ctx context.Context, interval time.Duration, eng *engine.Engine, session *server.Session, notes *telemetry.Sender, midi *midictl.Controller) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		es := eng.Stats()
		ss := session.Stats()
		fields := logrus.Fields{
			"function":         "logStats",
			"state":            es.State.String(),
			"frames_read":      es.FramesRead,
			"underruns":        es.Underruns,
			"evictions":        es.Evictions,
			"commands":         es.Commands,
			"commands_dropped": es.CommandsDropped,
			"faults":           es.Faults,
			"peak":             es.Peak,
			"free_frames":      es.FreeFrames,
			"packets":          ss.Packets,
			"malformed":        ss.Malformed,
			"frames_dropped":   ss.Dropped,
			"queue_full":       ss.QueueFull,
		}
		if notes != nil {
			sent, dropped, failed := notes.Stats()
			fields["osc_sent"] = sent
			fields["osc_dropped"] = dropped
			fields["osc_failed"] = failed
		}
		if midi != nil {
			fields["midi_dropped"] = midi.Dropped()
		}
		logrus.WithFields(fields).Info("stats")
	}
}
