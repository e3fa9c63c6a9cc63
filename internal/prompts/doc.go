// Package prompts contains the model-facing text used by the agent loop.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates use fmt.Sprintf interpolation and can be validated by
// tests. Each prompt category gets its own file with an exported function
// or constant that returns the fully interpolated text.
package prompts
