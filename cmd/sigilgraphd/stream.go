package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/sigilrun/sigilgraph/pkg/api"
	"github.com/sigilrun/sigilgraph/pkg/fact"
	"github.com/sigilrun/sigilgraph/pkg/spec"
	"github.com/sigilrun/sigilgraph/pkg/spec/invert"
	"github.com/sigilrun/sigilgraph/pkg/spec/run"
	"github.com/sigilrun/sigilgraph/pkg/store"
	"github.com/sigilrun/sigilgraph/pkg/wire"
)

// feedPageLimit bounds how many tuples one Storage.Feed call returns per
// catch-up or re-poll, whether satisfying the initial SUB or a reactive
// wake-up.
const feedPageLimit = 200

// flushWriter flushes the underlying buffered writer after every Write,
// since wire.Writer has no notion of framing boundaries to flush at —
// each frame is several small Fprintf calls and the client must see them
// promptly rather than whenever the kernel buffer happens to fill.
type flushWriter struct {
	bw *bufio.Writer
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.bw.Write(p)
	if err != nil {
		return n, err
	}
	return n, f.bw.Flush()
}

// streamConn serializes every frame and graph write this connection sends,
// since the reader goroutine and any number of reactive callbacks may all
// want to write to the same hijacked net.Conn.
type streamConn struct {
	mu sync.Mutex
	fw *wire.Writer
	gw *wire.GraphWriter
}

func (sc *streamConn) writeErr(feedID, message string) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.fw.WriteErr(feedID, message)
}

func (sc *streamConn) writePage(feedID string, facts []*fact.Fact, bookmark string) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for _, f := range facts {
		if err := sc.gw.WriteFact(f); err != nil {
			return err
		}
	}
	return sc.fw.WriteBook(feedID, bookmark)
}

// subscription tracks one live SUB's feed state: the content specification
// it polls, the start fact it's bound to, its own resume bookmark, and the
// reactive tokens waking it back up.
type subscription struct {
	mu       sync.Mutex
	feedID   string
	spec     *spec.Specification
	starts   map[string]fact.Reference
	bookmark string
	tokens   []uuid.UUID
}

// onNotify returns the reactive.Callback this subscription registers for
// each of its inverses: a wake-up re-polls the feed from its own last
// bookmark and pushes whatever is new, regardless of whether the firing
// inversion signaled Add or Remove. Facts are never deleted from the live
// graph outside of Purge, so a Remove only ever means a negative
// existential flipped and some previously-blocked tuple may now be
// visible — the next Feed page naturally picks that up. A re-poll that
// finds nothing new is a silent no-op, which is the best this wire
// protocol can do for a Remove with no corresponding facts to push.
func (sub *subscription) onNotify(storage store.Storage, sc *streamConn) func(ctx context.Context, results []run.Result, op invert.Operation) error {
	return func(ctx context.Context, _ []run.Result, _ invert.Operation) error {
		sub.mu.Lock()
		bookmark := sub.bookmark
		sub.mu.Unlock()

		page, err := storage.Feed(ctx, sub.spec, sub.starts, bookmark, feedPageLimit)
		if err != nil {
			return err
		}
		if len(page.Tuples) == 0 {
			return nil
		}
		if err := sc.writePage(sub.feedID, flattenTuples(page.Tuples), page.Bookmark); err != nil {
			return err
		}
		sub.mu.Lock()
		sub.bookmark = page.Bookmark
		sub.mu.Unlock()
		return nil
	}
}

// handleStream upgrades an authenticated GET into the line-framed SUB/
// UNSUB/BOOK/ERR protocol (spec.md §6.3) over a hijacked connection,
// pushing each subscription's matching facts as a forward graph stream
// (§6.4) and keeping it live via the reactive engine (§5).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteMethodNotAllowed(w)
		return
	}

	user, err := s.authenticate(r)
	if err != nil {
		api.WriteUnauthorized(w, err.Error())
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		api.WriteInternal(w, fmt.Errorf("sigilgraphd: response writer does not support hijacking"))
		return
	}
	conn, rw, err := hijacker.Hijack()
	if err != nil {
		api.WriteInternal(w, fmt.Errorf("sigilgraphd: hijacking connection: %w", err))
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	defer s.Reactive.Release(connID)
	defer s.SubLimiter.Forget(connID)

	sc := &streamConn{
		fw: wire.NewWriter(flushWriter{bw: rw.Writer}),
		gw: wire.NewGraphWriter(flushWriter{bw: rw.Writer}),
	}
	frameReader := wire.NewReader(rw.Reader)

	ctx := context.Background()
	subs := make(map[string]*subscription)

	for {
		frame, err := frameReader.ReadFrame()
		if err != nil {
			return
		}

		switch frame.Keyword {
		case wire.Sub:
			p, err := frame.Sub()
			if err != nil {
				_ = sc.writeErr("", err.Error())
				continue
			}
			s.handleSub(ctx, sc, connID, user, subs, p)

		case wire.Unsub:
			p, err := frame.Unsub()
			if err != nil {
				_ = sc.writeErr("", err.Error())
				continue
			}
			s.handleUnsub(subs, p)

		default:
			_ = sc.writeErr("", fmt.Sprintf("unrecognized frame keyword %q", frame.Keyword))
		}
	}
}

// handleSub resolves a SUB frame's feedId as the "Type:Hash" reference of
// the fact anchoring the feed (the same encoding pkg/fact.Reference.String
// produces), looks up its content specification by that type in the feed
// registry, checks distribution, and pushes the initial catch-up page
// before registering for live updates.
func (s *Server) handleSub(ctx context.Context, sc *streamConn, connID string, user fact.Reference, subs map[string]*subscription, p wire.SubPayload) {
	if !s.SubLimiter.Allow(connID) {
		_ = sc.writeErr(p.FeedID, "subscription rate limit exceeded")
		return
	}

	start, err := parseReference(p.FeedID)
	if err != nil {
		_ = sc.writeErr(p.FeedID, err.Error())
		return
	}
	contentSpec, ok := s.Feeds.Lookup(start.Type)
	if !ok {
		_ = sc.writeErr(p.FeedID, fmt.Sprintf("no feed registered for fact type %q", start.Type))
		return
	}
	given := contentSpec.Given[0].Name
	starts := map[string]fact.Reference{given: start}

	decision, err := s.Distribution.CanDistribute(ctx, []*spec.Specification{contentSpec}, starts, user)
	if err != nil {
		_ = sc.writeErr(p.FeedID, err.Error())
		return
	}
	if !decision.Allowed {
		_ = sc.writeErr(p.FeedID, decision.Reason)
		return
	}

	// A candidate that fails to advance the server's live bookmark means
	// the server already knows of a later point than the client claims;
	// spec.md §6.3 calls for an immediate BOOK in that case.
	effective, advanced, err := s.Bookmarks.Advance(ctx, p.FeedID, p.Bookmark)
	if err != nil {
		_ = sc.writeErr(p.FeedID, err.Error())
		return
	}
	if !advanced && effective != p.Bookmark {
		if err := sc.writePage(p.FeedID, nil, effective); err != nil {
			return
		}
	}

	page, err := s.Storage.Feed(ctx, contentSpec, starts, effective, feedPageLimit)
	if err != nil {
		_ = sc.writeErr(p.FeedID, err.Error())
		return
	}
	resumeFrom := effective
	if len(page.Tuples) > 0 {
		if err := sc.writePage(p.FeedID, flattenTuples(page.Tuples), page.Bookmark); err != nil {
			return
		}
		if _, _, err := s.Bookmarks.Advance(ctx, p.FeedID, page.Bookmark); err != nil {
			s.Logger.Warn("advancing feed bookmark", "feed", p.FeedID, "error", err)
		}
		resumeFrom = page.Bookmark
	}

	sub := &subscription{feedID: p.FeedID, spec: contentSpec, starts: starts, bookmark: resumeFrom}
	for _, inv := range invert.Invert(contentSpec) {
		token := s.Reactive.Register(connID, inv, sub.onNotify(s.Storage, sc))
		sub.tokens = append(sub.tokens, token)
	}
	subs[p.FeedID] = sub
}

func (s *Server) handleUnsub(subs map[string]*subscription, p wire.UnsubPayload) {
	sub, ok := subs[p.FeedID]
	if !ok {
		return
	}
	for _, token := range sub.tokens {
		s.Reactive.Deregister(token)
	}
	delete(subs, p.FeedID)
}

// flattenTuples collects every fact bound across a feed page's tuples,
// in result order; wire.GraphWriter silently elides anything already
// written to the stream, so facts shared by more than one tuple or
// already pushed by an earlier page are written only once.
func flattenTuples(tuples []store.Tuple) []*fact.Fact {
	var facts []*fact.Fact
	for _, t := range tuples {
		for _, f := range t.Facts {
			facts = append(facts, f)
		}
	}
	return facts
}
