package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	disimaging "github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/omr-eval/internal/imaging"
	"github.com/ironsheep/omr-eval/internal/keyload"
	"github.com/ironsheep/omr-eval/internal/omr"
	"github.com/ironsheep/omr-eval/internal/sheetgen"
)

const defaultKeyName = "default"

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "omr_evaluate").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
// The error data carries the failure kind so clients can tell a bad photo
// from a bad key.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	log := s.log.WithField("tool", params.Name)
	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		log.WithError(err).Warn("tool failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", fmt.Sprintf("%s: %v", omr.Kind(err), err))
	}
	log.Debug("tool done")

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Loads images from cache as needed
//  4. Calls the appropriate omr/imaging/store function
//  5. Returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	// Keys
	case "omr_load_key":
		return s.handleLoadKey(args)

	// Evaluation
	case "omr_evaluate":
		return s.handleEvaluate(ctx, args)
	case "omr_evaluate_batch":
		return s.handleEvaluateBatch(ctx, args)

	// Inspection
	case "omr_rectify":
		return s.handleRectify(args)
	case "omr_grid_overlay":
		return s.handleGridOverlay(args)
	case "omr_render_sheet":
		return s.handleRenderSheet(args)

	// Persistence
	case "omr_results":
		return s.handleResults(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// keySet returns the key set stored under name.
func (s *Server) keySet(name string) (*omr.KeySet, error) {
	if name == "" {
		name = defaultKeyName
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ks, ok := s.keys[name]
	if !ok {
		return nil, &omr.InvalidKeyError{Reason: fmt.Sprintf("no key loaded under %q (use omr_load_key)", name)}
	}
	return ks, nil
}

// === Key Handlers ===

type keyFileArg struct {
	Variant string `json:"variant"`
	Path    string `json:"path"`
}

type loadKeyArgs struct {
	Name    string       `json:"name"`
	Files   []keyFileArg `json:"files"`
	CSV     string       `json:"csv"`
	Variant string       `json:"variant"`
}

type loadKeyResult struct {
	Name     string   `json:"name"`
	Variants []string `json:"variants"`
	Default  string   `json:"default"`
	Subjects []string `json:"subjects"`
}

func (s *Server) handleLoadKey(args json.RawMessage) (interface{}, error) {
	var a loadKeyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Name == "" {
		a.Name = defaultKeyName
	}

	var ks *omr.KeySet
	var err error
	switch {
	case len(a.Files) > 0:
		files := make([]keyload.VariantFile, len(a.Files))
		for i, f := range a.Files {
			v := f.Variant
			if v == "" {
				v = omr.ChoiceLetter(i)
			}
			files[i] = keyload.VariantFile{Variant: v, Path: f.Path}
		}
		ks, err = keyload.LoadSet(s.grid, files...)
	case strings.TrimSpace(a.CSV) != "":
		if a.Variant == "" {
			a.Variant = "A"
		}
		var key *omr.AnswerKey
		key, err = keyload.Load(strings.NewReader(a.CSV), a.Variant, s.grid)
		if err == nil {
			ks, err = omr.NewKeySet(key)
		}
	default:
		return nil, errors.New("either files or csv is required")
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.keys[a.Name] = ks
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"name": a.Name, "variants": ks.Variants()}).Info("answer key loaded")
	return &loadKeyResult{
		Name:     a.Name,
		Variants: ks.Variants(),
		Default:  ks.Default().Variant(),
		Subjects: s.grid.Subjects,
	}, nil
}

// === Evaluation Handlers ===

type decisionArgs struct {
	Variant         string   `json:"variant"`
	FillThreshold   *float64 `json:"fill_threshold"`
	AmbiguityMargin *float64 `json:"ambiguity_margin"`
	WrongPenalty    float64  `json:"wrong_penalty"`
}

func (d decisionArgs) options(s *Server) omr.Options {
	opts := omr.DefaultOptions()
	if d.FillThreshold != nil {
		opts.FillThreshold = *d.FillThreshold
	}
	if d.AmbiguityMargin != nil {
		opts.AmbiguityMargin = *d.AmbiguityMargin
	}
	opts.Scoring.WrongPenalty = d.WrongPenalty
	opts.Variant = d.Variant
	opts.VariantDetector = s.variantDetector
	opts.SheetIDReader = s.sheetIDReader
	opts.Logger = s.log
	return opts
}

type evaluateArgs struct {
	decisionArgs
	Path        string `json:"path"`
	ImageBase64 string `json:"image_base64"`
	Key         string `json:"key"`
	Student     string `json:"student"`
	Debug       bool   `json:"debug"`
	Save        bool   `json:"save"`
}

type evaluateDebug struct {
	*omr.DebugArtifacts
	Overlay *imaging.EncodedImage `json:"overlay"`
}

type evaluateResult struct {
	Student string             `json:"student"`
	Image   *imaging.ImageInfo `json:"image"`
	Report  *omr.ScoreReport   `json:"report"`
	SavedID int64              `json:"saved_id,omitempty"`
	Debug   *evaluateDebug     `json:"debug,omitempty"`
}

func (s *Server) handleEvaluate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a evaluateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" && a.ImageBase64 == "" {
		return nil, errors.New("path or image_base64 is required")
	}
	if a.Save && s.results == nil {
		return nil, errNoStore
	}
	keys, err := s.keySet(a.Key)
	if err != nil {
		return nil, err
	}

	img, info, err := s.loadSheet(a.Path, a.ImageBase64)
	if err != nil {
		return nil, err
	}

	opts := a.options(s)
	opts.Debug = a.Debug
	eval, err := omr.Evaluate(ctx, omr.NewRawImage(img), s.grid, keys, opts)
	if err != nil {
		return nil, err
	}

	student := a.Student
	if student == "" && a.Path != "" {
		student = strings.TrimSuffix(filepath.Base(a.Path), filepath.Ext(a.Path))
	}
	student = omr.StudentName(student, 0, 1, eval.Report.SheetID)
	res := &evaluateResult{Student: student, Image: info, Report: eval.Report}

	if eval.Debug != nil {
		overlay, err := imaging.EncodePNG(eval.Debug.Overlay)
		if err != nil {
			return nil, err
		}
		res.Debug = &evaluateDebug{DebugArtifacts: eval.Debug, Overlay: overlay}
	}

	if a.Save {
		id, err := s.results.Save(ctx, "", student, eval.Report)
		if err != nil {
			return nil, err
		}
		res.SavedID = id
	}
	return res, nil
}

// loadSheet reads a sheet from path through the cache, or from inline
// base64 data when path is empty.
func (s *Server) loadSheet(path, data string) (image.Image, *imaging.ImageInfo, error) {
	if path != "" {
		info, err := imaging.LoadImageInfo(s.cache, path)
		if err != nil {
			return nil, nil, err
		}
		img, err := s.cache.Load(path)
		if err != nil {
			return nil, nil, err
		}
		return img, info, nil
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid image_base64: %w", err)
	}
	img, err := imaging.DecodeBytes(raw)
	if err != nil {
		return nil, nil, err
	}
	b := img.Bounds()
	return img, &imaging.ImageInfo{
		Width:         b.Dx(),
		Height:        b.Dy(),
		Format:        "inline",
		Channels:      imaging.Channels(img),
		FileSizeBytes: int64(len(raw)),
	}, nil
}

type evaluateBatchArgs struct {
	decisionArgs
	Paths     []string `json:"paths"`
	Directory string   `json:"directory"`
	Key       string   `json:"key"`
	Name      string   `json:"name"`
	Workers   int      `json:"workers"`
	Save      bool     `json:"save"`
}

type evaluateBatchResult struct {
	*omr.BatchResult
	Saved int `json:"saved,omitempty"`
}

func (s *Server) handleEvaluateBatch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a evaluateBatchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Directory != "" {
		found, err := imaging.ListImages(a.Directory)
		if err != nil {
			return nil, err
		}
		a.Paths = append(a.Paths, found...)
	}
	if len(a.Paths) == 0 {
		return nil, errors.New("no sheets given (paths or directory)")
	}
	if a.Save && s.results == nil {
		return nil, errNoStore
	}
	keys, err := s.keySet(a.Key)
	if err != nil {
		return nil, err
	}
	if a.Workers < 1 {
		a.Workers = s.workers
	}

	inputs := make([]omr.BatchInput, len(a.Paths))
	for i, p := range a.Paths {
		path := p
		inputs[i] = omr.BatchInput{
			Label: filepath.Base(path),
			Load:  func() (image.Image, error) { return s.cache.Load(path) },
		}
	}

	batch := omr.RunBatch(ctx, inputs, s.grid, keys, omr.BatchOptions{
		Workers:  a.Workers,
		Name:     a.Name,
		Evaluate: a.options(s),
	})
	res := &evaluateBatchResult{BatchResult: batch}

	// batch sheets are not revisited
	for _, p := range a.Paths {
		s.cache.Evict(p)
	}
	s.log.WithFields(logrus.Fields{"run_id": batch.RunID, "cached": s.cache.Len()}).Debug("batch done")

	if a.Save {
		n, err := s.results.SaveBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		res.Saved = n
	}
	return res, nil
}

// === Inspection Handlers ===

type rectifyArgs struct {
	Path   string  `json:"path"`
	Region string  `json:"region"`
	Scale  float64 `json:"scale"`
}

type rectifyResult struct {
	*imaging.EncodedImage
	Corners     [4][2]float64 `json:"corners"`
	EdgeSupport [4]float64    `json:"edge_support"`
	Flipped     bool          `json:"flipped"`
}

func (s *Server) handleRectify(args json.RawMessage) (interface{}, error) {
	var a rectifyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Region == "" {
		a.Region = "full"
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	norm, err := omr.Normalize(img, s.grid)
	if err != nil {
		return nil, err
	}
	out, err := imaging.CropRegion(norm.Image, a.Region, a.Scale)
	if err != nil {
		return nil, err
	}
	enc, err := imaging.EncodePNG(out)
	if err != nil {
		return nil, err
	}

	res := &rectifyResult{EncodedImage: enc, EdgeSupport: norm.EdgeSupport, Flipped: norm.Flipped}
	for i, c := range norm.Corners {
		res.Corners[i] = [2]float64{c.X, c.Y}
	}
	return res, nil
}

type gridOverlayArgs struct {
	Path            string   `json:"path"`
	FillThreshold   *float64 `json:"fill_threshold"`
	AmbiguityMargin *float64 `json:"ambiguity_margin"`
}

type overlaySubject struct {
	Subject string   `json:"subject"`
	Answers []string `json:"answers"`
}

type gridOverlayResult struct {
	*imaging.EncodedImage
	MatchedAnchors int               `json:"matched_anchors"`
	Anchors        []omr.AnchorMatch `json:"anchors"`
	Subjects       []overlaySubject  `json:"subjects"`
}

func (s *Server) handleGridOverlay(args json.RawMessage) (interface{}, error) {
	var a gridOverlayArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	opts := omr.DefaultOptions()
	if a.FillThreshold != nil {
		opts.FillThreshold = *a.FillThreshold
	}
	if a.AmbiguityMargin != nil {
		opts.AmbiguityMargin = *a.AmbiguityMargin
	}

	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	norm, err := omr.Normalize(img, s.grid)
	if err != nil {
		return nil, err
	}
	loc, err := omr.Locate(norm.Image, s.grid)
	if err != nil {
		return nil, err
	}
	scores := omr.Classify(norm.Image, loc.Cells, s.grid, opts.Classifier)
	threshold, margin := opts.Decision()
	answers := omr.ResolveAll(s.grid, scores, threshold, margin)

	enc, err := imaging.EncodePNG(omr.DrawGridOverlay(norm.Image, loc, scores, answers, s.grid))
	if err != nil {
		return nil, err
	}

	res := &gridOverlayResult{EncodedImage: enc, MatchedAnchors: loc.Matched, Anchors: loc.Anchors}
	q := s.grid.QuestionsPerSubject
	for i, name := range s.grid.Subjects {
		sub := overlaySubject{Subject: name, Answers: make([]string, q)}
		for j := 0; j < q; j++ {
			sub.Answers[j] = answers[i*q+j].String()
		}
		res.Subjects = append(res.Subjects, sub)
	}
	return res, nil
}

type renderSheetArgs struct {
	SetLabel   string `json:"set_label"`
	SheetID    string `json:"sheet_id"`
	Title      string `json:"title"`
	OutputPath string `json:"output_path"`
}

type renderSheetResult struct {
	*imaging.EncodedImage
	OutputPath string `json:"output_path,omitempty"`
}

func (s *Server) handleRenderSheet(args json.RawMessage) (interface{}, error) {
	var a renderSheetArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	sheet, err := sheetgen.Render(s.grid, sheetgen.Options{Title: a.Title, SetLabel: a.SetLabel, SheetID: a.SheetID})
	if err != nil {
		return nil, err
	}

	if a.OutputPath != "" {
		if err := disimaging.Save(sheet, a.OutputPath); err != nil {
			return nil, fmt.Errorf("failed to save sheet: %w", err)
		}
		b := sheet.Bounds()
		return &renderSheetResult{
			EncodedImage: &imaging.EncodedImage{Width: b.Dx(), Height: b.Dy(), MimeType: "image/png"},
			OutputPath:   a.OutputPath,
		}, nil
	}

	enc, err := imaging.EncodePNG(sheet)
	if err != nil {
		return nil, err
	}
	return &renderSheetResult{EncodedImage: enc}, nil
}

// === Persistence Handlers ===

var errNoStore = errors.New("no results database configured (set OMR_DATABASE_URL)")

type resultsArgs struct {
	Action string `json:"action"`
	Limit  int    `json:"limit"`
}

func (s *Server) handleResults(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a resultsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if s.results == nil {
		return nil, errNoStore
	}
	if a.Limit <= 0 {
		a.Limit = 50
	}

	switch a.Action {
	case "", "list":
		rows, err := s.results.List(ctx, a.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"results": rows, "count": len(rows)}, nil
	case "count":
		n, err := s.results.Count(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"count": n}, nil
	case "delete_all":
		n, err := s.results.DeleteAll(ctx)
		if err != nil {
			return nil, err
		}
		s.log.WithField("deleted", n).Info("stored results deleted")
		return map[string]interface{}{"deleted": n}, nil
	}
	return nil, fmt.Errorf("unknown action: %s", a.Action)
}
