package llmprovider

import "context"

// Fake is a deterministic Provider for tests: it returns FixedContent along
// with FixedUsage or, when FixedUsage is zero, a Usage computed from the
// byte lengths of the input messages and of FixedContent, and records every
// call it received for assertions.
type Fake struct {
	FixedContent string
	FixedUsage   Usage
	Err          error
	Calls        []Completion
	CallCount    int
}

func (f *Fake) Complete(_ context.Context, msgs []Message, _ int, _ float64) (Completion, error) {
	f.CallCount++
	if f.Err != nil {
		return Completion{}, f.Err
	}
	usage := f.FixedUsage
	if usage == (Usage{}) {
		var words int
		for _, m := range msgs {
			words += len(m.Content)
		}
		usage = Usage{PromptTokens: words, CompletionTokens: len(f.FixedContent), TotalTokens: words + len(f.FixedContent)}
	}
	c := Completion{Content: f.FixedContent, Usage: usage}
	f.Calls = append(f.Calls, c)
	return c, nil
}
