package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/xab-mack/contractscan/internal/analysis"
	"github.com/xab-mack/contractscan/internal/model"
	"github.com/xab-mack/contractscan/internal/semantic"
	"github.com/xab-mack/contractscan/internal/solidity"
)

// ruleWorkers bounds the goroutines evaluating rules for one file.
const ruleWorkers = 4

// analyze runs the pipeline on one source text. Facts are computed one
// function at a time and handed to rule workers; cancellation is observed
// between functions.
func (e *Engine) analyze(ctx context.Context, name, src string, log hclog.Logger) model.FileReport {
	fr := model.FileReport{Path: name}

	unit, synErrs := solidity.Parse(name, src)
	for _, se := range synErrs {
		fr.Errors = append(fr.Errors, model.FileError{
			Kind:    model.ErrKindSyntax,
			Message: fmt.Sprintf("expected %s, found %s", se.Expected, se.Found),
			Line:    se.Span.Start.Line,
			Column:  se.Span.Start.Column,
		})
	}
	if unit == nil {
		return fr
	}
	log.Debug("parsed file", "path", name, "syntax_errors", len(synErrs))

	tbl, resolveErrs := semantic.Resolve(unit)
	for _, err := range resolveErrs {
		fr.Errors = append(fr.Errors, resolutionError(err))
	}
	for _, err := range tbl.Warnings {
		fr.Warnings = append(fr.Warnings, resolutionError(err))
	}

	facts := make(chan *analysis.FunctionFacts)
	var (
		mu       sync.Mutex
		findings []model.Finding
		warnings []model.FileError
	)
	var g errgroup.Group
	for i := 0; i < ruleWorkers; i++ {
		g.Go(func() error {
			for ff := range facts {
				fs, warns := e.registry.Evaluate(ff)
				mu.Lock()
				findings = append(findings, fs...)
				for _, w := range warns {
					log.Warn("rule failed", "rule", w.RuleID, "function", w.Function, "error", w.Err)
					warnings = append(warnings, model.FileError{Kind: model.ErrKindRule, Message: w.Error(), Function: w.Function})
				}
				mu.Unlock()
			}
			return nil
		})
	}

	var stopped error
produce:
	for _, c := range tbl.Contracts {
		if c.IsInterface() {
			continue
		}
		cf := analysis.NewContractFacts(unit, tbl, c, e.options())
		for _, fn := range cf.Targets() {
			if err := ctx.Err(); err != nil {
				stopped = err
				break produce
			}
			ff, err := cf.Facts(fn)
			if ff == nil {
				continue
			}
			if err != nil {
				// the facts stay usable without a solved flow
				mu.Lock()
				warnings = append(warnings, model.FileError{Kind: model.ErrKindRule, Message: err.Error(), Function: ff.Entity})
				mu.Unlock()
			}
			facts <- ff
		}
	}
	close(facts)
	_ = g.Wait()

	if stopped != nil {
		log.Warn("analysis cancelled", "path", name, "error", stopped)
		fr.Errors = append(fr.Errors, cancelled(stopped))
	}
	sort.SliceStable(warnings, func(i, j int) bool {
		if warnings[i].Function != warnings[j].Function {
			return warnings[i].Function < warnings[j].Function
		}
		return warnings[i].Message < warnings[j].Message
	})
	fr.Findings = findings
	fr.Warnings = append(fr.Warnings, warnings...)
	return fr
}

func cancelled(err error) model.FileError {
	msg := "analysis cancelled"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "time budget exceeded"
	}
	return model.FileError{Kind: model.ErrKindCancelled, Message: msg}
}

// resolutionError converts a resolver diagnostic into a report entry.
func resolutionError(err error) model.FileError {
	var (
		unresolved *semantic.UnresolvedReferenceError
		duplicate  *semantic.DuplicateDeclarationError
		checksum   *semantic.AddressChecksumError
	)
	switch {
	case errors.As(err, &unresolved):
		msg := fmt.Sprintf("undeclared identifier %q", unresolved.Name)
		if len(unresolved.Candidates) > 0 {
			msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(unresolved.Candidates, ", "))
		}
		return model.FileError{
			Kind:     model.ErrKindUnresolved,
			Message:  msg,
			Line:     unresolved.Span.Start.Line,
			Column:   unresolved.Span.Start.Column,
			Function: unresolved.Function,
		}
	case errors.As(err, &duplicate):
		return model.FileError{
			Kind:     model.ErrKindDuplicate,
			Message:  fmt.Sprintf("%q already declared at %d:%d", duplicate.Name, duplicate.Previous.Start.Line, duplicate.Previous.Start.Column),
			Line:     duplicate.Span.Start.Line,
			Column:   duplicate.Span.Start.Column,
			Function: duplicate.Function,
		}
	case errors.As(err, &checksum):
		return model.FileError{
			Kind:    model.ErrKindChecksum,
			Message: fmt.Sprintf("address literal %s has an invalid checksum, expected %s", checksum.Literal, checksum.Want),
			Line:    checksum.Span.Start.Line,
			Column:  checksum.Span.Start.Column,
		}
	}
	return model.FileError{Kind: model.ErrKindUnresolved, Message: err.Error()}
}
