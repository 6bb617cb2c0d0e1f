/*
Package dsl provides a Go DSL for programmatically constructing Stepwise lessons.

It allows lesson authors and tests to define steps, files and checkpoints with a fluent builder
instead of Markdown documents. Checkpoint IDs default to c1, c2... in step order.

Example usage:

	package main

	import (
		"github.com/aretw0/stepwise"
		"github.com/aretw0/stepwise/pkg/dsl"
	)

	func main() {
		b := dsl.New("intro").Title("Intro to JavaScript")

		b.Step("hello").
			Instructions("Rename `x` to `helloWorld`.").
			File("/index.js", "let x = 1;").
			Start("let ").
			Regex("Rename x", "/helloWorld/")

		b.Step("sum").
			File("/sum.js", "").
			File("/sum.spec.js", "test('sum', () => {});").
			Depends("lodash", "4.17.21").
			Executed("Make the test pass", "/sum.spec.js")

		loader, _ := b.Build()
		engine, _ := stepwise.New("", stepwise.WithLoader(loader))
		// ... engine.Open(ctx, "learner-1", "intro")
	}
*/
package dsl
