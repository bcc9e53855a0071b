package executor

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/openweavr/openweavr/engine/workflow"
	"github.com/openweavr/openweavr/pkg/tplengine"
)

const maxURLSourceChars = 12000

// skippedHTMLTags are stripped along with their subtree before text is
// extracted from a `url` source.
var skippedHTMLTags = map[string]bool{
	"script": true, "style": true, "nav": true, "header": true, "footer": true, "aside": true,
}

// memoryAssembler builds the `memory = { blocks, sources }` structure
// on demand: nothing is fetched until the first step whose
// config references memory, and resolved source text is cached per
// (blockId, sourceId) for the rest of the run — except `step`/`trigger`
// sources and sources whose input strings carry a placeholder, which
// re-resolve on every assembly so later waves see fresh step outputs.
type memoryAssembler struct {
	exec   *Executor
	blocks []workflow.MemoryBlock

	mu    sync.Mutex
	cache map[string]string // blockID + "\x00" + sourceKey -> resolved text
}

func newMemoryAssembler(e *Executor, blocks []workflow.MemoryBlock) *memoryAssembler {
	return &memoryAssembler{exec: e, blocks: blocks, cache: make(map[string]string)}
}

// neededBy reports whether any string in config references memory through
// a placeholder, which is what gates assembly.
func (m *memoryAssembler) neededBy(config map[string]any) bool {
	if len(m.blocks) == 0 {
		return false
	}
	return valueReferencesMemory(config)
}

func valueReferencesMemory(value any) bool {
	switch v := value.(type) {
	case string:
		return tplengine.HasTemplate(v) && strings.Contains(v, "memory")
	case []any:
		for _, el := range v {
			if valueReferencesMemory(el) {
				return true
			}
		}
	case map[string]any:
		for _, el := range v {
			if valueReferencesMemory(el) {
				return true
			}
		}
	}
	return false
}

// assemble resolves every MemoryBlock's sources in declaration order.
// baseCtx carries trigger/steps/env/now-fields and an empty `memory` map
// (memory sources cannot reference memory output, so the recursive case
// cannot arise).
func (m *memoryAssembler) assemble(ctx context.Context, baseCtx map[string]any) map[string]any {
	blockText := make(map[string]any, len(m.blocks))
	blockSources := make(map[string]any, len(m.blocks))

	for _, block := range m.blocks {
		sourceValues := make(map[string]any, len(block.Sources))
		resolved := make([]resolvedSource, 0, len(block.Sources))
		for i, src := range block.Sources {
			key := sourceKey(i, src)
			text, ok := m.cached(block.ID, key, src)
			if !ok {
				text = m.exec.resolveSource(ctx, block.ID, src, baseCtx)
				m.store(block.ID, key, src, text)
			}
			sourceValues[key] = text
			resolved = append(resolved, resolvedSource{source: src, text: text})
		}
		blockSources[block.ID] = sourceValues
		blockText[block.ID] = composeBlock(block, resolved, m.exec.tpl, sourceValues)
	}

	return map[string]any{"blocks": blockText, "sources": blockSources}
}

func (m *memoryAssembler) cached(blockID, key string, src workflow.MemorySource) (string, bool) {
	if !cacheableSource(src) {
		return "", false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.cache[blockID+"\x00"+key]
	return text, ok
}

func (m *memoryAssembler) store(blockID, key string, src workflow.MemorySource, text string) {
	if !cacheableSource(src) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[blockID+"\x00"+key] = text
}

// cacheableSource reports whether a source's first resolution holds for
// the whole run: step/trigger sources and sources whose input strings
// carry a placeholder must re-resolve, everything else is cached.
func cacheableSource(src workflow.MemorySource) bool {
	switch src.Type {
	case workflow.MemorySourceStep, workflow.MemorySourceTrigger:
		return false
	}
	for _, input := range []string{src.Text, src.Path, src.URL, src.Query} {
		if tplengine.HasTemplate(input) {
			return false
		}
	}
	return true
}

type resolvedSource struct {
	source workflow.MemorySource
	text   string
}

func sourceKey(idx int, src workflow.MemorySource) string {
	if src.ID != "" {
		return src.ID
	}
	return fmt.Sprintf("%d", idx)
}

// resolveSource resolves one MemorySource to text, substituting an error
// marker on failure instead of propagating the error, so a broken source
// never aborts the run by itself.
func (e *Executor) resolveSource(ctx context.Context, blockID string, src workflow.MemorySource, baseCtx map[string]any) string {
	text, err := e.resolveSourceRaw(ctx, src, baseCtx)
	if err != nil {
		e.log.Warn("memory source failed", "block", blockID, "type", src.Type, "error", err)
		return fmt.Sprintf("[memory:%s] Failed to load %s source: %s", blockID, src.Type, err)
	}
	text = normalizeText(text)
	if src.MaxChars != nil {
		text = truncate(text, *src.MaxChars)
	}
	return text
}

func (e *Executor) resolveSourceRaw(ctx context.Context, src workflow.MemorySource, baseCtx map[string]any) (string, error) {
	switch src.Type {
	case workflow.MemorySourceText:
		return e.tpl.RenderString(src.Text, baseCtx), nil
	case workflow.MemorySourceFile:
		path := e.tpl.RenderString(src.Path, baseCtx)
		content, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(content), nil
	case workflow.MemorySourceURL:
		url := e.tpl.RenderString(src.URL, baseCtx)
		urlCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return e.fetchURLSource(urlCtx, url)
	case workflow.MemorySourceWebSearch:
		query := e.tpl.RenderString(src.Query, baseCtx)
		searchCtx, cancel := context.WithTimeout(ctx, e.webSearchCfg.Timeout)
		defer cancel()
		return e.webSearch(searchCtx, query, src.MaxResults)
	case workflow.MemorySourceStep:
		return resolveStepSource(src, baseCtx)
	case workflow.MemorySourceTrigger:
		return resolveTriggerSource(src, baseCtx)
	default:
		return "", fmt.Errorf("unknown memory source type %q", src.Type)
	}
}

func resolveStepSource(src workflow.MemorySource, baseCtx map[string]any) (string, error) {
	steps, _ := baseCtx["steps"].(map[string]any)
	output, ok := steps[src.StepID]
	if !ok {
		return "", fmt.Errorf("step %q has not completed", src.StepID)
	}
	if src.Path == "" {
		return tplengine.Stringify(output), nil
	}
	val, ok := tplengine.Resolve(map[string]any{"value": output}, "value."+src.Path)
	if !ok {
		return "", fmt.Errorf("path %q not found in step %q output", src.Path, src.StepID)
	}
	return tplengine.Stringify(val), nil
}

func resolveTriggerSource(src workflow.MemorySource, baseCtx map[string]any) (string, error) {
	trigger, _ := baseCtx["trigger"].(map[string]any)
	if src.Path == "" {
		return tplengine.Stringify(trigger), nil
	}
	val, ok := tplengine.Resolve(map[string]any{"value": trigger}, "value."+src.Path)
	if !ok {
		return "", fmt.Errorf("path %q not found in trigger data", src.Path)
	}
	return tplengine.Stringify(val), nil
}

// composeBlock joins a block's resolved sources into its final text:
// either by rendering the block template over them, or by joining them
// with the separator, labeled sources prefixed with a "## <label>" line.
func composeBlock(block workflow.MemoryBlock, resolved []resolvedSource, tpl *tplengine.Engine, sourceValues map[string]any) string {
	var text string
	if block.Template != nil {
		text = tpl.RenderString(*block.Template, map[string]any{"sources": sourceValues})
	} else {
		parts := make([]string, 0, len(resolved))
		for _, rs := range resolved {
			part := rs.text
			if rs.source.Label != "" {
				part = fmt.Sprintf("## %s\n%s", rs.source.Label, part)
			}
			parts = append(parts, part)
		}
		text = strings.Join(parts, block.SeparatorOrDefault())
	}
	if block.Dedupe {
		text = dedupeLines(text)
	}
	if block.MaxChars != nil {
		text = truncate(text, *block.MaxChars)
	}
	return text
}

func dedupeLines(s string) string {
	lines := strings.Split(s, "\n")
	seen := make(map[string]bool, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			out = append(out, line)
			continue
		}
		if seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

func (e *Executor) fetchURLSource(ctx context.Context, url string) (string, error) {
	resp, err := e.http.R().
		SetContext(ctx).
		SetHeader("User-Agent", urlSourceUserAgent).
		Get(url)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("GET %s: status %d", url, resp.StatusCode())
	}
	body := resp.String()
	if looksLikeHTML(resp.Header().Get("Content-Type"), body) {
		body = stripHTML(body)
	}
	return truncate(body, maxURLSourceChars), nil
}

func looksLikeHTML(contentType, body string) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	trimmed := strings.ToLower(strings.TrimSpace(body))
	return strings.HasPrefix(trimmed, "<!doctype html") || strings.HasPrefix(trimmed, "<html")
}

// stripHTML removes script/style/nav/header/footer/aside subtrees, then
// every remaining tag, then collapses whitespace.
func stripHTML(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedHTMLTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
			buf.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return collapseWhitespace(buf.String())
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
