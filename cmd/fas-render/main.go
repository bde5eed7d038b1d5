package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grz0zrg/fas"
	"github.com/grz0zrg/fas/capture"
	"github.com/grz0zrg/fas/config"
	"github.com/grz0zrg/fas/engine"
	"github.com/grz0zrg/fas/protocol"
	"github.com/grz0zrg/fas/samples"
	"github.com/grz0zrg/fas/server"
	"github.com/grz0zrg/fas/version"
	"github.com/sirupsen/logrus"
	"github.com/viterin/vek/vek32"
)

// handshakeWait is the time given to a settings change between two rendered
// blocks.
const handshakeWait = 5 * time.Millisecond

type options struct {
	output  string
	raw     bool
	pcm     bool
	norm    bool
	tail    time.Duration
	seed    uint
	version bool
}

func main() {
	var opts options
	cfg, set, err := config.Parse("fas-render", os.Args[1:], func(set *flag.FlagSet) {
		set.StringVar(&opts.output, "o", "", "Output `file`. By default, the capture name with a .wav or .raw extension in the working directory.")
		set.BoolVar(&opts.raw, "r", false, "Output a .raw float buffer instead of a .wav file.")
		set.BoolVar(&opts.pcm, "c", false, "Convert audio to 16-bit signed PCM when outputting.")
		set.BoolVar(&opts.norm, "n", false, "Normalize the output to a peak of 1.")
		set.DurationVar(&opts.tail, "tail", time.Second, "Audio rendered after the last packet.")
		set.UintVar(&opts.seed, "seed", 1, "Seed of the oscillator phases and noise; 0 seeds from the clock.")
		set.BoolVar(&opts.version, "v", false, "Print version.")
	})
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if opts.version {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if set.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: fas-render [flags] capture\n")
		set.PrintDefaults()
		os.Exit(2)
	}
	cfg.Validate()
	logrus.SetLevel(cfg.Level())
	if err := run(&cfg, opts, set.Arg(0)); err != nil {
		logrus.WithFields(logrus.Fields{"function": "main"}).WithError(err).Fatal("render failed")
	}
}

func run(cfg *config.Config, opts options, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	reader, err := capture.NewReader(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	smps, err := samples.Load(cfg.GrainsDir, cfg.SampleRate)
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "run"}).WithError(err).Warn("rendering without grains")
	}
	eng, session := setup(cfg, uint32(opts.seed), smps)
	r := newRenderer(eng, cfg.OutputChannels, cfg.Frames, cfg.SampleRate)
	ctx := context.Background()
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		r.until(rec.At)
		if err := r.handle(ctx, session, rec.Packet); err != nil {
			logrus.WithFields(logrus.Fields{"function": "run", "at": rec.At}).WithError(err).Debug("packet discarded")
		}
	}
	r.until(r.elapsed() + opts.tail)
	if opts.norm {
		normalize(r.out)
	}

	var data []byte
	if opts.raw {
		data, err = fas.Raw(r.out, opts.pcm)
	} else {
		data, err = fas.Wav(r.out, cfg.OutputChannels, cfg.SampleRate, opts.pcm)
	}
	if err != nil {
		return fmt.Errorf("could not encode the output: %w", err)
	}
	out := outputPath(path, opts)
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("could not write the output: %w", err)
	}
	ss := session.Stats()
	logrus.WithFields(logrus.Fields{
		"function":  "run",
		"file":      out,
		"duration":  r.elapsed(),
		"packets":   ss.Packets,
		"malformed": ss.Malformed,
		"dropped":   ss.Dropped,
	}).Info("rendered")
	return nil
}

// normalize scales buf so its absolute peak is 1. Silence is left untouched.
func normalize(buf []float32) {
	if len(buf) == 0 {
		return
	}
	peak := max(vek32.Max(buf), -vek32.Min(buf))
	if peak > 0 {
		vek32.MulNumber_Inplace(buf, 1/peak)
	}
}

func setup(cfg *config.Config, seed uint32, smps []fas.Sample) (*engine.Engine, *server.Session) {
	eng := engine.New(engine.Config{
		SampleRate:    cfg.SampleRate,
		Channels:      cfg.Channels(),
		TickSamples:   cfg.TickSamples(),
		WavetableSize: cfg.WavetableSize,
		FramesQueue:   cfg.FramesQueueSize,
		CommandsQueue: cfg.CommandsQueueSize,
		NoiseAmount:   cfg.NoiseAmount,
		HoldTicks:     cfg.HoldTicks,
		Seed:          seed,
	}, smps)
	session := server.NewSession(eng, server.SessionConfig{
		Cutoff:       float32(cfg.ActivityCutoff),
		PauseTimeout: cfg.PauseTimeout,
		Seed:         seed,
	})
	return eng, session
}

func outputPath(capturePath string, opts options) string {
	if opts.output != "" {
		return opts.output
	}
	ext := ".wav"
	if opts.raw {
		ext = ".raw"
	}
	name := filepath.Base(capturePath)
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

// renderer drives the engine in place of the audio device, one block at a
// time, and keeps everything it renders.
type renderer struct {
	eng        *engine.Engine
	channels   int
	sampleRate int
	block      []float32
	out        []float32
}

func newRenderer(eng *engine.Engine, channels, frames, sampleRate int) *renderer {
	return &renderer{eng: eng, channels: channels, sampleRate: sampleRate, block: make([]float32, channels*frames)}
}

func (r *renderer) elapsed() time.Duration {
	frames := len(r.out) / r.channels
	return time.Duration(frames) * time.Second / time.Duration(r.sampleRate)
}

func (r *renderer) render() {
	r.eng.Process(r.block)
	r.out = append(r.out, r.block...)
}

// until renders blocks until at least t of audio exists.
func (r *renderer) until(t time.Duration) {
	for r.elapsed() < t {
		r.render()
	}
}

// handle feeds a packet to the session. A settings change waits for the
// render side to pause, so blocks keep being rendered until it is done.
func (r *renderer) handle(ctx context.Context, s *server.Session, packet []byte) error {
	if len(packet) == 0 || protocol.Type(packet[0]) != protocol.Settings {
		return s.Handle(ctx, packet)
	}
	done := make(chan error, 1)
	go func() { done <- s.Handle(ctx, packet) }()
	for {
		r.render()
		select {
		case err := <-done:
			return err
		case <-time.After(handshakeWait):
		}
	}
}
