package fas

type (
	// AudioSource renders interleaved float32 audio. Process is called from
	// the audio callback: it must fill out completely without blocking or
	// allocating.
	AudioSource interface {
		Process(out []float32)
	}

	// AudioContext is an opened audio output device.
	AudioContext interface {
		Play(src AudioSource) (AudioPlayer, error)
		SampleRate() int
		Channels() int
		Close() error
	}

	// AudioPlayer is a running output stream pulling from an AudioSource.
	AudioPlayer interface {
		Close() error
	}
)
