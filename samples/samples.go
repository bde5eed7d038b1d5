// Package samples loads the sound files used as grain sources by the granular
// synthesis method.
package samples

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gopxl/beep/v2/wav"
	"github.com/grz0zrg/fas"
	"github.com/sirupsen/logrus"
)

const streamChunk = 4096

// Load decodes every .wav file of dir, in name order. Files that cannot be
// decoded are logged and skipped. sampleRate is the output rate; samples
// recorded at another rate are loaded as is and play at a shifted pitch.
func Load(dir string, sampleRate int) ([]fas.Sample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("samples: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	var out []fas.Sample
	for _, name := range names {
		log := logrus.WithFields(logrus.Fields{"function": "samples.Load", "file": name})
		s, rate, err := loadFile(filepath.Join(dir, name))
		if err != nil {
			log.WithError(err).Warn("skipping sample")
			continue
		}
		if rate != sampleRate {
			log.WithFields(logrus.Fields{"rate": rate, "output": sampleRate}).Warn("sample rate differs from the output rate")
		}
		log.WithFields(logrus.Fields{"channels": s.Channels, "frames": s.Frames}).Debug("sample loaded")
		out = append(out, s)
	}
	return out, nil
}

func loadFile(path string) (fas.Sample, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return fas.Sample{}, 0, err
	}
	defer f.Close()
	return Decode(filepath.Base(path), f)
}

// Decode decodes a WAV stream into a stereo sample; mono sources are
// duplicated on both channels. It also returns the sample rate of the stream.
func Decode(name string, r io.Reader) (fas.Sample, int, error) {
	stream, format, err := wav.Decode(r)
	if err != nil {
		return fas.Sample{}, 0, fmt.Errorf("decode %s: %w", name, err)
	}
	defer stream.Close()
	buf := make([][2]float64, streamChunk)
	var data []float32
	for {
		n, ok := stream.Stream(buf)
		for _, v := range buf[:n] {
			data = append(data, float32(v[0]), float32(v[1]))
		}
		if !ok {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return fas.Sample{}, 0, fmt.Errorf("decode %s: %w", name, err)
	}
	if len(data) == 0 {
		return fas.Sample{}, 0, fmt.Errorf("decode %s: no audio data", name)
	}
	return fas.Sample{
		Name:     name,
		Channels: 2,
		Frames:   len(data) / 2,
		Data:     data,
	}, int(format.SampleRate), nil
}
