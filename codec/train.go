package codec

import (
	"github.com/klauspost/compress/dict"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// minTrainSamples is the floor below which dictionary training is refused
// outright; the builder needs repeated cross-sample substrings to find
// anything worth indexing.
const minTrainSamples = 8

// Train builds a serialized zstd dictionary of at most |maxSize| bytes from
// the sample corpus. An error indicates the samples were too few or too
// uniform to train from; callers treat that as a retryable no-op, not a
// failure of the store.
func Train(samples [][]byte, maxSize int) ([]byte, error) {
	if len(samples) < minTrainSamples {
		return nil, errors.Errorf("too few samples to train a dictionary (%d < %d)",
			len(samples), minTrainSamples)
	}

	var raw, err = dict.BuildZstdDict(samples, dict.Options{
		MaxDictSize: maxSize,
		HashBytes:   6,
		ZstdLevel:   zstd.SpeedBetterCompression,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "training zstd dictionary")
	}
	return raw, nil
}
