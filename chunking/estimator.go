// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chunking

import (
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
)

// Estimator approximates the number of model tokens in a piece of text.
type Estimator interface {
	Estimate(text string) int
}

// EstimatorFunc adapts a function to the Estimator interface.
type EstimatorFunc func(string) int

func (f EstimatorFunc) Estimate(text string) int { return f(text) }

// CharEstimator counts one token per four characters, rounding down.
type CharEstimator struct{}

func (CharEstimator) Estimate(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// ModelEstimator counts tokens with the tokenizer of a named model.
// The tokenizer encoding may be fetched on first use; unknown models fall
// back to a character heuristic inside langchaingo.
type ModelEstimator struct {
	Model string
}

func (m ModelEstimator) Estimate(text string) int {
	return llms.CountTokens(m.Model, text)
}
