package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/pinstack/pinstack/pkg/audit"
	"github.com/pinstack/pinstack/pkg/hierarchy"
	"github.com/pinstack/pinstack/pkg/httputil"
	"github.com/pinstack/pinstack/pkg/registry"
	"github.com/pinstack/pinstack/pkg/resolver"
	"github.com/pinstack/pinstack/pkg/revision"
)

type createPackageRequest struct {
	Name string `json:"name"`
}

func (s *Server) createPackage(w http.ResponseWriter, r *http.Request) {
	var req createPackageRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	pkg, err := s.registry.CreatePackage(r.Context(), req.Name)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, pkg)
}

func (s *Server) listPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := s.registry.Store().ListPackages(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, packages)
}

func (s *Server) getPackage(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	pkg, err := s.registry.Store().GetPackage(r.Context(), name)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, pkg)
}

type createDistributionRequest struct {
	Version string `json:"version"`
}

func (s *Server) createDistribution(w http.ResponseWriter, r *http.Request) {
	var req createDistributionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	dist, err := s.registry.CreateDistribution(r.Context(), mux.Vars(r)["name"], req.Version)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, dist)
}

func (s *Server) listDistributions(w http.ResponseWriter, r *http.Request) {
	dists, err := s.registry.Store().ListDistributions(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, dists)
}

type registerPathRequest struct {
	Path string `json:"path"`
}

func (s *Server) registerPath(w http.ResponseWriter, r *http.Request) {
	axis, err := hierarchy.ParseAxis(mux.Vars(r)["axis"])
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	var req registerPathRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	p, err := s.registry.RegisterPath(r.Context(), axis, req.Path)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, map[string]string{
		"axis": string(axis),
		"path": p.String(),
	})
}

func (s *Server) listPaths(w http.ResponseWriter, r *http.Request) {
	axis, err := hierarchy.ParseAxis(mux.Vars(r)["axis"])
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	// ?nearest= reports where a request value would land after the
	// structural ancestor walk, for debugging unexpected resolutions
	if target := r.URL.Query().Get("nearest"); target != "" {
		p, err := s.registry.Hierarchy().NearestRegistered(axis, target)
		if err != nil {
			httputil.WriteDomainError(w, err)
			return
		}
		httputil.WriteSuccess(w, map[string]string{
			"axis": string(axis),
			"path": p.String(),
		})
		return
	}

	paths := s.registry.Hierarchy().List(axis)
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, p.String())
	}
	httputil.WriteSuccess(w, out)
}

type upsertPinRequest struct {
	Package        string `json:"package"`
	Role           string `json:"role"`
	Level          string `json:"level"`
	Site           string `json:"site"`
	Platform       string `json:"platform"`
	DistributionID int64  `json:"distribution_id"`
	Author         string `json:"author"`
	Comment        string `json:"comment"`
}

type pinResponse struct {
	Pin           *registry.VersionPin `json:"pin"`
	TransactionID int64                `json:"transaction_id"`
	RevisionID    string               `json:"revision_id"`
}

func (s *Server) upsertPin(w http.ResponseWriter, r *http.Request) {
	var req upsertPinRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	coord, err := registry.NewCoordinate(req.Package, req.Role, req.Level, req.Site, req.Platform)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	ctx := r.Context()
	pin, prior, err := s.registry.UpsertVersionPin(ctx, coord, req.DistributionID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	// prior was captured under the coordinate lock, so the insert/update
	// distinction holds even under concurrent upserts
	txID := s.newTransactionID()
	event := &audit.Event{
		TransactionID: txID,
		Table:         "versionpin",
		Action:        audit.ActionInsert,
		Changes:       pinRowImage(pin),
	}
	if prior != nil {
		event.Action = audit.ActionUpdate
		event.Before = pinRowImage(prior)
		event.Changes = audit.RowImage{
			"distribution_id": strconv.FormatInt(pin.Distribution.ID, 10),
		}
	}
	s.recordChange(ctx, txID, req.Author, req.Comment, event)

	resp := pinResponse{Pin: pin, TransactionID: txID}
	if rev := s.lastRevision(ctx, txID); rev != nil {
		resp.RevisionID = rev.ID
	}
	if prior != nil {
		httputil.WriteSuccess(w, resp)
		return
	}
	httputil.WriteCreated(w, resp)
}

func (s *Server) listPins(w http.ResponseWriter, r *http.Request) {
	pkg := r.URL.Query().Get("package")
	if pkg == "" {
		httputil.WriteValidationError(w, "package query parameter is required")
		return
	}
	pins, err := s.registry.Store().PinsForPackage(r.Context(), pkg)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, pins)
}

func (s *Server) getPin(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httputil.WriteValidationError(w, "invalid pin id")
		return
	}
	pin, err := s.registry.Store().GetPin(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, pin)
}

type setWithsRequest struct {
	Withs   []string `json:"withs"`
	Author  string   `json:"author"`
	Comment string   `json:"comment"`
}

func (s *Server) setWiths(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httputil.WriteValidationError(w, "invalid pin id")
		return
	}
	var req setWithsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	ctx := r.Context()
	before, err := s.registry.Store().GetPin(ctx, id)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	if err := s.registry.SetDependencies(ctx, id, req.Withs); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	after, err := s.registry.Store().GetPin(ctx, id)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	txID := s.newTransactionID()
	events := make([]*audit.Event, 0, len(before.Withs)+len(after.Withs))
	for i, name := range before.Withs {
		events = append(events, &audit.Event{
			TransactionID: txID,
			Table:         "withs",
			Action:        audit.ActionDelete,
			Before:        withRowImage(id, i, name),
		})
	}
	for i, name := range after.Withs {
		events = append(events, &audit.Event{
			TransactionID: txID,
			Table:         "withs",
			Action:        audit.ActionInsert,
			Changes:       withRowImage(id, i, name),
		})
	}
	s.recordChange(ctx, txID, req.Author, req.Comment, events...)

	resp := pinResponse{Pin: after, TransactionID: txID}
	if rev := s.lastRevision(ctx, txID); rev != nil {
		resp.RevisionID = rev.ID
	}
	httputil.WriteSuccess(w, resp)
}

func (s *Server) getWiths(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httputil.WriteValidationError(w, "invalid pin id")
		return
	}
	pin, err := s.registry.Store().GetPin(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	withs := pin.Withs
	if withs == nil {
		withs = []string{}
	}
	httputil.WriteSuccess(w, map[string][]string{"withs": withs})
}

type resolveResponse struct {
	Pin   *registry.VersionPin   `json:"pin,omitempty"`
	Pins  []*registry.VersionPin `json:"pins,omitempty"`
	Withs []resolver.Expansion   `json:"withs,omitempty"`
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := resolver.Request{
		Package:  mux.Vars(r)["package"],
		Role:     q.Get("role"),
		Level:    q.Get("level"),
		Site:     q.Get("site"),
		Platform: q.Get("platform"),
		Mode:     resolver.Mode(q.Get("mode")),
	}

	result, err := s.resolver.Resolve(r.Context(), req)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	mode, _ := resolver.ParseMode(string(req.Mode))
	if s.metrics != nil {
		outcome := "hit"
		if !result.Found {
			outcome = "miss"
		}
		s.metrics.ResolutionsTotal.WithLabelValues(string(mode), outcome).Inc()
	}

	if !result.Found {
		httputil.WriteJSON(w, http.StatusNotFound, map[string]string{"status": "not-found"})
		return
	}

	resp := resolveResponse{}
	if mode == resolver.ModeDescendant {
		resp.Pins = result.Pins
	} else {
		resp.Pin = result.Pin()
	}

	if q.Get("expand") == "1" && resp.Pin != nil {
		expansions, err := s.resolver.ExpandDependencies(r.Context(), resp.Pin, resolver.Context{
			Role: req.Role, Level: req.Level, Site: req.Site, Platform: req.Platform,
		})
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		resp.Withs = expansions
	}
	httputil.WriteSuccess(w, resp)
}

type createRevisionRequest struct {
	TransactionID int64  `json:"transaction_id"`
	Author        string `json:"author"`
	Comment       string `json:"comment"`
}

// createRevision records an annotation revision for a transaction that was
// committed out of band, e.g. by a bulk import feeding events directly.
func (s *Server) createRevision(w http.ResponseWriter, r *http.Request) {
	var req createRevisionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	if req.TransactionID == 0 {
		httputil.WriteValidationError(w, "transaction_id is required")
		return
	}
	if req.Author == "" {
		httputil.WriteValidationError(w, "author is required")
		return
	}

	doc, err := s.engine.MaterializeChangeDocument(r.Context(), req.TransactionID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	rev := &revision.Revision{
		TransactionID: req.TransactionID,
		Author:        req.Author,
		Comment:       req.Comment,
		Document:      doc,
	}
	if err := s.revisions.Record(r.Context(), rev); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, rev)
}

func (s *Server) getRevision(w http.ResponseWriter, r *http.Request) {
	rev, err := s.revisions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, rev)
}

func (s *Server) listRevisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := revision.ListFilter{Author: q.Get("author")}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	revisions, err := s.revisions.List(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, revisions)
}

func (s *Server) transactionChanges(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httputil.WriteValidationError(w, "invalid transaction id")
		return
	}

	doc, err := s.engine.MaterializeChangeDocument(r.Context(), id)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, doc)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Store().Ping(r.Context()); err != nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	httputil.WriteSuccess(w, map[string]string{"status": "ready"})
}

// recordChange appends the transaction's events and its revision record.
// History failures are logged, not surfaced: the registry write already
// committed and the caller's view of it must not depend on bookkeeping.
func (s *Server) recordChange(ctx context.Context, txID int64, author, comment string, events ...*audit.Event) {
	for _, event := range events {
		if err := s.feed.Append(ctx, event); err != nil {
			s.logger.WithError(err).Errorf("failed to append change event for transaction %d", txID)
			return
		}
		if s.metrics != nil {
			s.metrics.ChangeEventsTotal.WithLabelValues(event.Table, string(event.Action)).Inc()
		}
	}
	if author == "" {
		author = "unknown"
	}
	rev := &revision.Revision{TransactionID: txID, Author: author, Comment: comment}
	doc, err := s.engine.MaterializeChangeDocument(ctx, txID)
	if err != nil {
		s.logger.WithError(err).Errorf("failed to materialize changes for transaction %d", txID)
	} else {
		rev.Document = doc
	}
	if err := s.revisions.Record(ctx, rev); err != nil {
		s.logger.WithError(err).Errorf("failed to record revision for transaction %d", txID)
	}
}

// lastRevision fetches the revision just recorded for txID, best effort.
func (s *Server) lastRevision(ctx context.Context, txID int64) *revision.Revision {
	revisions, err := s.revisions.List(ctx, revision.ListFilter{Limit: 16})
	if err != nil {
		return nil
	}
	for _, rev := range revisions {
		if rev.TransactionID == txID {
			return rev
		}
	}
	return nil
}

func pinRowImage(pin *registry.VersionPin) audit.RowImage {
	c := pin.Coordinate
	return audit.RowImage{
		"id":              strconv.FormatInt(pin.ID, 10),
		"package":         c.Package,
		"role":            c.Role.String(),
		"level":           c.Level.String(),
		"site":            c.Site.String(),
		"platform":        c.Platform.String(),
		"distribution_id": strconv.FormatInt(pin.Distribution.ID, 10),
	}
}

func withRowImage(pinID int64, position int, name string) audit.RowImage {
	return audit.RowImage{
		"pin_id":   strconv.FormatInt(pinID, 10),
		"position": strconv.Itoa(position),
		"package":  name,
	}
}
