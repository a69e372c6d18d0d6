package samtools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ldseq/internal/services"
)

type recordingExecutor struct {
	commands []services.Command
	err      error
}

func (r *recordingExecutor) Run(_ context.Context, command services.Command) error {
	r.commands = append(r.commands, command)
	return r.err
}

func TestViewFilterAssemblesArguments(t *testing.T) {
	executor := &recordingExecutor{}
	cli := NewCLI(WithExecutor(executor))

	input := strings.NewReader("@HD\tVN:1.6\n")
	err := cli.ViewFilter(context.Background(), ViewFilterRequest{
		Input:  input,
		Output: "Bams/s1.bam",
	})
	if err != nil {
		t.Fatalf("ViewFilter returned error: %v", err)
	}

	command := executor.commands[0]
	if command.Binary != "samtools" {
		t.Fatalf("expected samtools binary, got %q", command.Binary)
	}
	want := "view -b -f 0x2 -F 0x4 -o Bams/s1.bam -"
	if got := strings.Join(command.Args, " "); got != want {
		t.Fatalf("unexpected arguments %q, want %q", got, want)
	}
	if command.Stdin == nil {
		t.Fatal("expected stdin to carry the SAM stream")
	}
}

func TestViewFilterRequiresFields(t *testing.T) {
	cli := NewCLI(WithExecutor(&recordingExecutor{}))
	if err := cli.ViewFilter(context.Background(), ViewFilterRequest{Output: "o"}); err == nil {
		t.Fatal("expected error when input reader is nil")
	}
	if err := cli.ViewFilter(context.Background(), ViewFilterRequest{Input: strings.NewReader("")}); err == nil {
		t.Fatal("expected error when output path is empty")
	}
}

func TestSortAssemblesArguments(t *testing.T) {
	executor := &recordingExecutor{}
	cli := NewCLI(WithExecutor(executor))

	err := cli.Sort(context.Background(), SortRequest{
		Input:      "Bams/s1.bam",
		Output:     "Bams/.s1.sorted.bam.partial",
		Threads:    8,
		TempPrefix: "Bams/.s1.sort",
	})
	if err != nil {
		t.Fatalf("Sort returned error: %v", err)
	}
	want := "sort -@ 8 -T Bams/.s1.sort -o Bams/.s1.sorted.bam.partial Bams/s1.bam"
	if got := strings.Join(executor.commands[0].Args, " "); got != want {
		t.Fatalf("unexpected arguments %q, want %q", got, want)
	}
}

func TestSortOmitsOptionalFlags(t *testing.T) {
	executor := &recordingExecutor{}
	cli := NewCLI(WithExecutor(executor))

	if err := cli.Sort(context.Background(), SortRequest{Input: "in.bam", Output: "out.bam"}); err != nil {
		t.Fatalf("Sort returned error: %v", err)
	}
	if got := strings.Join(executor.commands[0].Args, " "); got != "sort -o out.bam in.bam" {
		t.Fatalf("unexpected arguments %q", got)
	}
}

func TestIndexIncludesThreadsWhenPositive(t *testing.T) {
	executor := &recordingExecutor{}
	cli := NewCLI(WithExecutor(executor))

	if err := cli.Index(context.Background(), IndexRequest{BAM: "s1.sorted.bam", Threads: 8}); err != nil {
		t.Fatalf("Index returned error: %v", err)
	}
	if got := strings.Join(executor.commands[0].Args, " "); got != "index -@ 8 s1.sorted.bam" {
		t.Fatalf("unexpected arguments %q", got)
	}
}

func TestIndexOmitsThreadsWhenNonPositive(t *testing.T) {
	executor := &recordingExecutor{}
	cli := NewCLI(WithExecutor(executor))

	if err := cli.Index(context.Background(), IndexRequest{BAM: "s1.sorted.bam"}); err != nil {
		t.Fatalf("Index returned error: %v", err)
	}
	if got := strings.Join(executor.commands[0].Args, " "); got != "index s1.sorted.bam" {
		t.Fatalf("unexpected arguments %q", got)
	}
}

func TestQuickcheckAssemblesArguments(t *testing.T) {
	executor := &recordingExecutor{}
	cli := NewCLI(WithExecutor(executor))

	if err := cli.Quickcheck(context.Background(), "Bams/s1.sorted.bam", nil); err != nil {
		t.Fatalf("Quickcheck returned error: %v", err)
	}
	if got := strings.Join(executor.commands[0].Args, " "); got != "quickcheck Bams/s1.sorted.bam" {
		t.Fatalf("unexpected arguments %q", got)
	}
}

func TestFailuresWrapOperation(t *testing.T) {
	sentinel := errors.New("exit status 1")
	cli := NewCLI(WithExecutor(&recordingExecutor{err: sentinel}))

	err := cli.Quickcheck(context.Background(), "broken.bam", nil)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped executor error, got %v", err)
	}
	if !strings.Contains(err.Error(), "samtools quickcheck") {
		t.Fatalf("expected operation in error, got %v", err)
	}
}
