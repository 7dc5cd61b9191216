package build

import (
	"context"
	"sort"
	"sync"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/logfields"
	"git.home.luguber.info/inful/apitree/internal/metrics"
	"git.home.luguber.info/inful/apitree/internal/observability"
	"git.home.luguber.info/inful/apitree/internal/render"
	"git.home.luguber.info/inful/apitree/internal/tree"
)

// placeholderTemplate is implemented by template sets that render failure
// pages in their own format.
type placeholderTemplate interface {
	Placeholder(node *tree.ModuleNode, err error) []byte
}

type pageError struct {
	path string
	err  error
}

// errorSink collects fatal worker errors.
type errorSink struct {
	mu   sync.Mutex
	errs []pageError
}

func (s *errorSink) add(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, pageError{path: path, err: err})
}

// first returns the error of the lowest output path so the reported failure
// does not depend on scheduling.
func (s *errorSink) first() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) == 0 {
		return nil
	}
	sort.Slice(s.errs, func(i, j int) bool { return s.errs[i].path < s.errs[j].path })
	return s.errs[0].err
}

// renderAll renders every display node with a worker pool, then the root
// index. Workers pull node indices from a buffered channel; the first fatal
// error or a canceled context stops scheduling, pages already written stay.
func (bs *buildState) renderAll(ctx context.Context) error {
	nodes := bs.forest.Nodes()
	workers := bs.svc.workers(len(nodes))
	bs.report.Workers = workers
	bs.svc.recorder.SetRenderWorkers(workers)
	observability.Logger(ctx, bs.svc.logger).Debug("Rendering pages", logfields.Count(len(nodes)), logfields.Workers(workers))

	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int, len(nodes))
	for i := range nodes {
		jobs <- i
	}
	close(jobs)

	sink := &errorSink{}
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if poolCtx.Err() != nil {
					return
				}
				if err := bs.renderNode(ctx, nodes[i]); err != nil {
					sink.add(nodes[i].OutputPath(), err)
					cancel()
					return
				}
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sink.first(); err != nil {
		return err
	}
	return bs.renderNode(ctx, bs.table.Root())
}

// renderNode renders and writes one page. A render failure becomes a
// placeholder page plus an issue unless render.fail_on_error is set.
func (bs *buildState) renderNode(ctx context.Context, n *tree.ModuleNode) error {
	data, err := bs.template.Render(n, n.SortedChildren(), bs.table)
	placeholder := false
	if err != nil {
		rerr := renderError(n, err)
		if bs.svc.cfg.Render.FailOnError {
			return rerr
		}
		observability.Logger(ctx, bs.svc.logger).Warn("Render failed, writing placeholder",
			logfields.DottedName(n.DottedName), logfields.Path(n.OutputPath()), logfields.Error(err))
		bs.report.AddIssue(StageRendering, rerr)
		data = bs.placeholder(n, err)
		placeholder = true
	}

	written, err := writePage(bs.svc.cfg.Output.Directory, n.OutputPath(), data)
	if err != nil {
		return err
	}
	bs.report.countPage(written, placeholder)
	switch {
	case placeholder:
		bs.svc.recorder.IncPageResult(metrics.PagePlaceholder)
	case written:
		bs.svc.recorder.IncPageResult(metrics.PageWritten)
	default:
		bs.svc.recorder.IncPageResult(metrics.PageUnchanged)
	}
	return nil
}

func (bs *buildState) placeholder(n *tree.ModuleNode, err error) []byte {
	if p, ok := bs.template.(placeholderTemplate); ok {
		return p.Placeholder(n, err)
	}
	return render.Placeholder(n, err)
}

// renderError classifies template failures and attaches the node and page.
func renderError(n *tree.ModuleNode, err error) error {
	if ce, ok := errors.AsClassified(err); ok {
		if _, has := ce.Context().GetString("path"); !has {
			return ce.WithContext("path", n.OutputPath())
		}
		return ce
	}
	label := n.DottedName
	if label == "" {
		label = n.ShortName
	}
	return errors.RenderError("template execution failed").
		WithCause(err).
		WithContext("dotted_name", label).
		WithContext("path", n.OutputPath()).
		Build()
}
