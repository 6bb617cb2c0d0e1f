package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/stepwise/internal/presentation/graph"
	"github.com/aretw0/stepwise/pkg/domain"
)

func lesson() domain.Lesson {
	return domain.Lesson{
		ID: "intro",
		Steps: []domain.Step{
			{
				ID: "say-hello",
				Checkpoints: []domain.Checkpoint{
					{ID: "c1", Message: `Name it "helloWorld"`, Test: domain.TestSpec{Pattern: "/helloWorld/"}},
					{ID: "c2", Message: "Tests pass", Test: domain.TestSpec{Path: "/index.test.js"}},
				},
				Dependencies: []domain.Dependency{{Package: "react", Version: "18.2.0"}},
			},
			{ID: "bye.md"},
		},
	}
}

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		overlay  *graph.Overlay
		contains []string
		excludes []string
	}{
		{
			name: "Step Chain",
			contains: []string{
				"graph TD\n",
				`say_hello(("1. say-hello <br/> 📦 1"))`,
				`bye_md(("2. bye.md"))`,
				"say_hello --> bye_md",
			},
			excludes: []string{"bye_md -->", "classDef"},
		},
		{
			name: "Checkpoint Shapes",
			contains: []string{
				"subgraph say_hello_checks",
				`say_hello__c1["Name it 'helloWorld'"]`,
				`say_hello__c2[["Tests pass"]]`,
				"say_hello -.-> say_hello__c1",
				"say_hello__c1 -.-> say_hello__c2",
			},
			excludes: []string{"subgraph bye_md_checks"},
		},
		{
			name: "Overlay",
			overlay: graph.OverlayFrom(&domain.Progress{
				StepIndex: 1,
				Passed:    map[string][]string{"say-hello": {"c1", "c2"}},
			}),
			contains: []string{
				"class say_hello visited;",
				"class bye_md current;",
				"class say_hello__c1 passed;",
				"class say_hello__c2 passed;",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(lesson(), tt.overlay)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("GenerateMermaid() missing %q\nGot:\n%s", want, got)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(got, unwanted) {
					t.Errorf("GenerateMermaid() unexpectedly contains %q\nGot:\n%s", unwanted, got)
				}
			}
		})
	}
}

func TestOverlayFrom_Nil(t *testing.T) {
	if graph.OverlayFrom(nil) != nil {
		t.Error("expected nil overlay for nil progress")
	}
}
