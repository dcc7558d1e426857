// Package prompts holds the built-in benchmark battery.
package prompts

import "github.com/yourorg/ollamabench/pkg/types"

var battery = [...]types.PromptEntry{
	{Text: "Name any one river in India.", Temperature: 0.2},
	{Text: "Who wrote the Indian National Anthem?", Temperature: 0.2},
	{Text: "Translate 'peace' to French.", Temperature: 0.3},
	{Text: "Suggest a healthy snack for children.", Temperature: 0.7},
	{Text: "Write a Python function to add two numbers.", Temperature: 0.5},
	{Text: "Summarize the water cycle in one sentence.", Temperature: 0.4},
	{Text: "What is the capital of Canada?", Temperature: 0.2},
	{Text: "Name a fruit that is yellow.", Temperature: 0.3},
	{Text: "Who is known as the father of computers?", Temperature: 0.2},
	{Text: "Give me a random English word.", Temperature: 0.8},
	{Text: "What is the square root of 144?", Temperature: 0.2},
	{Text: "Suggest a nickname for a friendly dog.", Temperature: 0.8},
	{Text: "Explain gravity to a child.", Temperature: 0.5},
	{Text: "Which planet is called the Red Planet?", Temperature: 0.2},
	{Text: "List any one prime number between 10 and 20.", Temperature: 0.2},
	{Text: "What comes next in the sequence: 2, 4, 8, 16, ...?", Temperature: 0.3},
	{Text: "Translate 'thank you' to Spanish.", Temperature: 0.3},
	{Text: "Tell me a short joke.", Temperature: 0.9},
	{Text: "Who is the current UN Secretary-General?", Temperature: 0.2},
	{Text: "Complete: To be, or not to be, ...", Temperature: 0.4},
}

// Default returns a copy of the built-in battery in execution order.
func Default() []types.PromptEntry {
	out := make([]types.PromptEntry, len(battery))
	copy(out, battery[:])
	return out
}
