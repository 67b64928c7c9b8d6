// Package question holds the interview question bank.
package question

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default is the bank used when none is configured.
var Default = []string{
	"Tell me about yourself.",
	"Why do you want to work at our company?",
	"What are your strengths and weaknesses?",
	"Describe a challenging project you worked on.",
	"Where do you see yourself in 5 years?",
	"Explain a technical decision you took in your last project.",
	"How do you stay updated with new technologies?",
	"Describe a time you fixed a production bug.",
	"How do you prioritize tasks when overloaded?",
	"How do you handle feedback?",
}

// Bank is a fixed, ordered set of distinct prompts.
type Bank struct {
	prompts []string
}

// NewBank trims the prompts, drops blanks and duplicates, and keeps the order.
func NewBank(prompts []string) (Bank, error) {
	seen := make(map[string]struct{}, len(prompts))
	b := Bank{prompts: make([]string, 0, len(prompts))}

	for _, p := range prompts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		b.prompts = append(b.prompts, p)
	}

	if len(b.prompts) == 0 {
		return Bank{}, fmt.Errorf("question bank is empty")
	}

	return b, nil
}

// MustNewBank is like NewBank but panics on an empty bank.
func MustNewBank(prompts []string) Bank {
	b, err := NewBank(prompts)
	if err != nil {
		panic(err)
	}
	return b
}

type file struct {
	Questions []string `yaml:"questions"`
}

// LoadFile reads a bank from a YAML file of the form:
//
//	questions:
//	  - Tell me about yourself.
func LoadFile(path string) (Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Bank{}, fmt.Errorf("read question file %s: %w", path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Bank{}, fmt.Errorf("parse question file %s: %w", path, err)
	}

	return NewBank(f.Questions)
}

func (b Bank) Len() int {
	return len(b.prompts)
}

// Questions returns a copy of the prompts in bank order.
func (b Bank) Questions() []string {
	return slices.Clone(b.prompts)
}

// Remaining returns the prompts not yet in asked, in bank order.
func (b Bank) Remaining(asked func(string) bool) []string {
	out := make([]string, 0, len(b.prompts))
	for _, p := range b.prompts {
		if !asked(p) {
			out = append(out, p)
		}
	}
	return out
}
