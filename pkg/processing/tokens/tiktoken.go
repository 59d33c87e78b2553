package tokens

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"mercator-hq/relay/pkg/llm"
)

const (
	// EncodingCL100K covers GPT-4, GPT-3.5 and is a fair proxy for other vendors.
	EncodingCL100K = "cl100k_base"

	// EncodingO200K covers the gpt-4o and o-series families.
	EncodingO200K = "o200k_base"
)

var o200kPrefixes = []string{"gpt-4o", "gpt-4.1", "gpt-5", "o1", "o3", "o4"}

// encoder is the subset of *tiktoken.Tiktoken the estimator uses.
type encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
}

type encodingLoader func(name string) (encoder, error)

func loadTiktoken(name string) (encoder, error) {
	return tiktoken.GetEncoding(name)
}

type loadedEncoding struct {
	once sync.Once
	enc  encoder
	err  error
}

// TiktokenEstimator counts tokens with a BPE encoding and defers to a
// fallback estimator when the encoding is unavailable.
type TiktokenEstimator struct {
	defaultEncoding string
	fallback        Estimator
	load            encodingLoader
	encodings       sync.Map // encoding name -> *loadedEncoding
	logger          *slog.Logger
}

// NewTiktokenEstimator creates an estimator. An empty defaultEncoding means
// cl100k_base. A nil fallback means a SimpleEstimator with default ratios.
func NewTiktokenEstimator(defaultEncoding string, fallback Estimator) *TiktokenEstimator {
	return newTiktokenEstimator(defaultEncoding, fallback, loadTiktoken)
}

func newTiktokenEstimator(defaultEncoding string, fallback Estimator, load encodingLoader) *TiktokenEstimator {
	if defaultEncoding == "" {
		defaultEncoding = EncodingCL100K
	}
	if fallback == nil {
		fallback = NewSimpleEstimator(nil)
	}
	return &TiktokenEstimator{
		defaultEncoding: defaultEncoding,
		fallback:        fallback,
		load:            load,
		logger:          slog.Default().With("component", "tokens"),
	}
}

// EncodingForModel returns the encoding name used for model.
func (e *TiktokenEstimator) EncodingForModel(model string) string {
	for _, prefix := range o200kPrefixes {
		if strings.HasPrefix(model, prefix) {
			return EncodingO200K
		}
	}
	return e.defaultEncoding
}

func (e *TiktokenEstimator) encoding(name string) (encoder, error) {
	v, _ := e.encodings.LoadOrStore(name, &loadedEncoding{})
	le := v.(*loadedEncoding)
	le.once.Do(func() {
		le.enc, le.err = e.load(name)
		if le.err != nil {
			e.logger.Warn("tiktoken encoding unavailable, using character estimate",
				"encoding", name,
				"error", le.err,
			)
		}
	})
	return le.enc, le.err
}

// EstimateText counts the tokens in text.
func (e *TiktokenEstimator) EstimateText(text string, model string) (int, error) {
	if text == "" {
		return 0, nil
	}
	enc, err := e.encoding(e.EncodingForModel(model))
	if err != nil {
		return e.fallback.EstimateText(text, model)
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// EstimateMessages counts prompt tokens for a conversation.
func (e *TiktokenEstimator) EstimateMessages(messages []llm.Message, model string) (int, error) {
	return estimateMessages(e.EstimateText, messages, model)
}

// EstimateTools counts tokens for tool definitions.
func (e *TiktokenEstimator) EstimateTools(tools []llm.Tool, model string) (int, error) {
	return estimateTools(e.EstimateText, tools, model)
}
