package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/relay/pkg/llm"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/streaming"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// errStreamIdle cancels a stream whose provider stopped sending frames.
var errStreamIdle = errors.New("no stream data within the idle timeout")

// Stream runs a streamed completion. The sequence yields non-final partial
// outputs whenever content, reasoning or the set of completed tool calls
// changes, then exactly one final output. An error ends the sequence; when it
// is a *providers.ProviderError raised mid-stream, it carries the last
// partial output.
//
// The sequence is single-use. Breaking out of the loop closes the response
// body; cancelling ctx ends it with context.Canceled. A provider that sends
// nothing for the engine timeout fails the attempt as a provider timeout;
// time spent in the consumer's loop body does not count.
func (e *Engine) Stream(ctx context.Context, messages []llm.Message, opts *llm.Options, raw *llm.RawCompletion) iter.Seq2[*llm.StructuredOutput, error] {
	return func(yield func(*llm.StructuredOutput, error) bool) {
		if opts == nil {
			yield(nil, providers.NewInvalidRunOptions("options are required"))
			return
		}
		if raw == nil {
			raw = &llm.RawCompletion{}
		}

		ctx, span := e.tracer.Start(ctx, "completion.stream", trace.WithAttributes(
			attribute.String("llm.provider", e.adapter.Name()),
			attribute.String("llm.model", opts.Model),
		))
		defer span.End()

		call, err := e.newCall(messages, opts)
		if err != nil {
			yield(nil, e.fail(span, call, err))
			return
		}
		defer e.finalize(messages, opts, raw)

		var partials int
		var last *llm.StructuredOutput
		fail := func(err error) {
			var pe *providers.ProviderError
			if errors.As(err, &pe) && pe.PartialOutput == nil {
				pe.PartialOutput = last
			}
			span.SetAttributes(attribute.Int("llm.partials", partials))
			yield(nil, e.fail(span, call, err))
		}

		streamCtx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)
		idle := time.AfterFunc(e.timeout, func() { cancel(errStreamIdle) })
		defer idle.Stop()

		resp, err := e.send(streamCtx, call, true)
		if err != nil {
			fail(e.streamError(ctx, streamCtx, err))
			return
		}
		defer resp.Body.Close()

		var stateOpts []streaming.StateOption
		if call.tags {
			stateOpts = append(stateOpts, streaming.WithThinkingTags(e.settings.ThinkOpenTag, e.settings.ThinkCloseTag))
		}
		state := streaming.NewState(stateOpts...)
		splitter := streaming.NewFrameSplitter(resp.Body, e.adapter.StreamDelimiter())
		eos, _ := e.adapter.(providers.EndOfStreamer)

		for {
			frame, err := splitter.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				fail(e.streamError(ctx, streamCtx, providers.ClassifyTransportError(e.adapter.Name(), err)))
				return
			}
			idle.Reset(e.timeout)

			event := streaming.ParseSSE(frame)
			if eos != nil && eos.IsEndOfStream(event) {
				break
			}

			delta, err := e.adapter.ExtractStreamDelta(event, raw, state.Buffers)
			if err != nil {
				raw.Response = state.Content()
				fail(err)
				return
			}
			if !state.Apply(delta) {
				continue
			}
			raw.Response = state.Content()

			last = e.buildPartial(call, state, last)
			partials++
			idle.Stop()
			if !yield(last, nil) {
				span.SetAttributes(attribute.Int("llm.partials", partials))
				return
			}
			idle.Reset(e.timeout)
		}
		idle.Stop()

		state.Finish()
		raw.Response = state.Content()
		for _, skipped := range state.Skipped() {
			e.logger.Warn("dropped incomplete tool call",
				"model", opts.Model,
				"index", skipped.Index,
				"reason", skipped.Reason,
			)
		}

		final, err := e.buildFinal(call, state.Content(), reasoningSteps(state.Reasoning()), state.ToolCalls(), state.AnyToolCalls(), raw.FinishReason)
		if err != nil {
			fail(err)
			return
		}
		if final.Output == nil && last != nil {
			final.Output = last.Output
		}

		span.SetAttributes(attribute.Int("llm.partials", partials))
		tracing.SetStatus(span, nil)
		yield(final, nil)
	}
}

// streamError replaces the error of a failed send or read when the stream
// context ended it. Cancellation by the caller wins; cancellation by the idle
// timer becomes a provider timeout.
func (e *Engine) streamError(ctx, streamCtx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(context.Cause(streamCtx), errStreamIdle) {
		return providers.ClassifyTransportError(e.adapter.Name(),
			fmt.Errorf("%w: %w", errStreamIdle, context.DeadlineExceeded))
	}
	return err
}

// Collect drains a stream and returns its final output.
func Collect(seq iter.Seq2[*llm.StructuredOutput, error]) (*llm.StructuredOutput, error) {
	var final *llm.StructuredOutput
	for out, err := range seq {
		if err != nil {
			return nil, err
		}
		final = out
	}
	if final == nil {
		return nil, errors.New("stream ended without output")
	}
	return final, nil
}
