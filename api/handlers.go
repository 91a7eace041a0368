package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"beatseq/render"
	"beatseq/sequencer"

	"github.com/gin-gonic/gin"
)

func (s *Server) getProject(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Snapshot())
}

// putProject replaces the session with a serialized project document.
func (s *Server) putProject(c *gin.Context) {
	blob, err := c.GetRawData()
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := sequencer.LoadProject(blob)
	if err != nil {
		fail(c, err)
		return
	}
	s.transport.Stop()
	s.session.Load(p)
	c.JSON(http.StatusOK, s.session.Snapshot())
}

func (s *Server) exportProject(c *gin.Context) {
	blob, err := sequencer.SerializeProject(s.session.Snapshot())
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/yaml", blob)
}

func (s *Server) setBPM(c *gin.Context) {
	var req struct {
		BPM int `json:"bpm" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	s.done(c, s.session.SetBPM(req.BPM))
}

func (s *Server) setMaster(c *gin.Context) {
	var req struct {
		Volume float64 `json:"volume"`
	}
	if !bind(c, &req) {
		return
	}
	s.done(c, s.session.SetMasterVolume(req.Volume))
}

func (s *Server) addTrack(c *gin.Context) {
	var req struct {
		Name string              `json:"name"`
		Kind sequencer.TrackKind `json:"kind" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	id, err := s.session.AddTrack(req.Name, req.Kind)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "project": s.session.Snapshot()})
}

// editTrack applies the present fields as a single command.
func (s *Server) editTrack(c *gin.Context) {
	id, ok := trackParam(c)
	if !ok {
		return
	}
	var req struct {
		Name   *string          `json:"name"`
		Volume *float64         `json:"volume"`
		Pan    *float64         `json:"pan"`
		Sound  *sequencer.Pitch `json:"sound"`
	}
	if !bind(c, &req) {
		return
	}
	s.done(c, s.session.EditTrack(id, sequencer.TrackEdit{
		Name:   req.Name,
		Volume: req.Volume,
		Pan:    req.Pan,
		Sound:  req.Sound,
	}))
}

func (s *Server) removeTrack(c *gin.Context) {
	id, ok := trackParam(c)
	if !ok {
		return
	}
	s.done(c, s.session.RemoveTrack(id))
}

func (s *Server) toggleMute(c *gin.Context) {
	id, ok := trackParam(c)
	if !ok {
		return
	}
	s.done(c, s.session.ToggleMute(id))
}

func (s *Server) toggleSolo(c *gin.Context) {
	id, ok := trackParam(c)
	if !ok {
		return
	}
	s.done(c, s.session.ToggleSolo(id))
}

func (s *Server) setEffect(c *gin.Context) {
	id, ok := trackParam(c)
	if !ok {
		return
	}
	kind, err := sequencer.ParseEffectKind(c.Param("effect"))
	if err != nil {
		fail(c, err)
		return
	}
	var req struct {
		Amount float64 `json:"amount"`
	}
	if !bind(c, &req) {
		return
	}
	s.done(c, s.session.SetTrackEffect(id, kind, req.Amount))
}

func (s *Server) toggleStep(c *gin.Context) {
	id, ok := trackParam(c)
	if !ok {
		return
	}
	step, ok := intParam(c, "step")
	if !ok {
		return
	}
	s.done(c, s.session.ToggleStep(id, step))
}

func (s *Server) setStep(c *gin.Context) {
	id, ok := trackParam(c)
	if !ok {
		return
	}
	step, ok := intParam(c, "step")
	if !ok {
		return
	}
	var req struct {
		On bool `json:"on"`
	}
	if !bind(c, &req) {
		return
	}
	s.done(c, s.session.SetStep(id, step, req.On))
}

func (s *Server) clearPattern(c *gin.Context) {
	id, ok := trackParam(c)
	if !ok {
		return
	}
	s.done(c, s.session.ClearPattern(id))
}

func (s *Server) addPattern(c *gin.Context) {
	id, ok := trackParam(c)
	if !ok {
		return
	}
	index, err := s.session.AddPattern(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"index": index, "project": s.session.Snapshot()})
}

func (s *Server) selectPattern(c *gin.Context) {
	id, ok := trackParam(c)
	if !ok {
		return
	}
	var req struct {
		Index int `json:"index"`
	}
	if !bind(c, &req) {
		return
	}
	s.done(c, s.session.SelectPattern(id, req.Index))
}

func (s *Server) addNote(c *gin.Context) {
	id, ok := trackParam(c)
	if !ok {
		return
	}
	var req struct {
		Pitch    sequencer.Pitch `json:"pitch"`
		Start    int             `json:"start"`
		Duration int             `json:"duration"`
		Velocity *int            `json:"velocity"`
	}
	if !bind(c, &req) {
		return
	}
	vel := sequencer.DefaultVelocity
	if req.Velocity != nil {
		vel = *req.Velocity
	}
	note, err := s.session.AddNote(id, req.Pitch, req.Start, max(req.Duration, 1), vel)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": note, "project": s.session.Snapshot()})
}

func (s *Server) editNote(c *gin.Context) {
	id, ok := trackParam(c)
	if !ok {
		return
	}
	n, ok := intParam(c, "note")
	if !ok {
		return
	}
	note := sequencer.NoteID(n)
	var req struct {
		Pitch    *sequencer.Pitch `json:"pitch"`
		Start    *int             `json:"start"`
		Duration *int             `json:"duration"`
		Velocity *int             `json:"velocity"`
	}
	if !bind(c, &req) {
		return
	}

	var err error
	if req.Pitch != nil || req.Start != nil {
		// a missing note falls through to MoveNote's not found error
		cur, _ := findNote(s.session.Snapshot(), id, note)
		pitch, start := cur.Pitch, cur.StartStep
		if req.Pitch != nil {
			pitch = *req.Pitch
		}
		if req.Start != nil {
			start = *req.Start
		}
		err = s.session.MoveNote(id, note, pitch, start)
	}
	if err == nil && req.Duration != nil {
		err = s.session.ResizeNote(id, note, *req.Duration)
	}
	if err == nil && req.Velocity != nil {
		err = s.session.SetNoteVelocity(id, note, *req.Velocity)
	}
	s.done(c, err)
}

func findNote(p *sequencer.Project, id sequencer.TrackID, note sequencer.NoteID) (sequencer.Note, bool) {
	t := p.Track(id)
	if t == nil {
		return sequencer.Note{}, false
	}
	pat := t.ActivePattern()
	if pat == nil {
		return sequencer.Note{}, false
	}
	for _, n := range pat.Notes {
		if n.ID == note {
			return n, true
		}
	}
	return sequencer.Note{}, false
}

func (s *Server) removeNote(c *gin.Context) {
	id, ok := trackParam(c)
	if !ok {
		return
	}
	n, ok := intParam(c, "note")
	if !ok {
		return
	}
	s.done(c, s.session.RemoveNote(id, sequencer.NoteID(n)))
}

func (s *Server) recordNote(c *gin.Context) {
	id, ok := trackParam(c)
	if !ok {
		return
	}
	var req struct {
		Pitch    sequencer.Pitch `json:"pitch"`
		Velocity int             `json:"velocity"`
	}
	if !bind(c, &req) {
		return
	}
	recorded, err := s.session.RecordNote(s.transport, id, req.Pitch, req.Velocity)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": recorded, "step": s.transport.Position()})
}

func (s *Server) addBlock(c *gin.Context) {
	var b sequencer.PatternBlock
	if !bind(c, &b) {
		return
	}
	s.done(c, s.session.AddBlock(b))
}

func (s *Server) editBlock(c *gin.Context) {
	id, ok := trackParam(c)
	if !ok {
		return
	}
	bar, ok := intParam(c, "bar")
	if !ok {
		return
	}
	var req struct {
		StartBar   *int    `json:"startBar"`
		LengthBars *int    `json:"lengthBars"`
		Pattern    *int    `json:"pattern"`
		Category   *string `json:"category"`
	}
	if !bind(c, &req) {
		return
	}

	var err error
	if req.Pattern != nil || req.Category != nil {
		cur := s.session.Snapshot().BlockAt(id, bar)
		pattern, category := 0, ""
		if cur != nil {
			pattern, category = cur.Pattern, cur.Category
		}
		if req.Pattern != nil {
			pattern = *req.Pattern
		}
		if req.Category != nil {
			category = *req.Category
		}
		err = s.session.SetBlockPattern(id, bar, pattern, category)
	}
	if err == nil && req.LengthBars != nil {
		err = s.session.ResizeBlock(id, bar, *req.LengthBars)
	}
	if err == nil && req.StartBar != nil {
		err = s.session.MoveBlock(id, bar, *req.StartBar)
	}
	s.done(c, err)
}

func (s *Server) removeBlock(c *gin.Context) {
	id, ok := trackParam(c)
	if !ok {
		return
	}
	bar, ok := intParam(c, "bar")
	if !ok {
		return
	}
	s.done(c, s.session.RemoveBlock(id, bar))
}

func (s *Server) historyState(ok bool) gin.H {
	return gin.H{
		"ok":      ok,
		"canUndo": s.session.CanUndo(),
		"canRedo": s.session.CanRedo(),
		"project": s.session.Snapshot(),
	}
}

func (s *Server) undo(c *gin.Context) {
	c.JSON(http.StatusOK, s.historyState(s.session.Undo()))
}

func (s *Server) redo(c *gin.Context) {
	c.JSON(http.StatusOK, s.historyState(s.session.Redo()))
}

func (s *Server) listVersions(c *gin.Context) {
	versions, current := s.session.Versions()
	c.JSON(http.StatusOK, gin.H{"versions": versions, "current": current})
}

func (s *Server) saveVersion(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !bind(c, &req) {
		return
	}
	c.JSON(http.StatusCreated, s.session.SaveVersion(req.Name, req.Description))
}

func (s *Server) jumpToVersion(c *gin.Context) {
	var req struct {
		Ref string `json:"ref" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	v, err := s.session.JumpToVersion(req.Ref)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": v, "project": s.session.Snapshot()})
}

func (s *Server) flush(c *gin.Context) {
	s.session.Flush()
	c.Status(http.StatusNoContent)
}

func (s *Server) transportStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":     s.transport.State().String(),
		"position":  s.transport.Position(),
		"recording": s.transport.Recording(),
		"stepMs":    s.transport.StepDuration().Milliseconds(),
	})
}

func (s *Server) startTransport(c *gin.Context) {
	if err := s.transport.Start(); err != nil {
		fail(c, err)
		return
	}
	s.transportStatus(c)
}

func (s *Server) stopTransport(c *gin.Context) {
	s.transport.Stop()
	s.transportStatus(c)
}

func (s *Server) toggleTransport(c *gin.Context) {
	if err := s.transport.Toggle(); err != nil {
		fail(c, err)
		return
	}
	s.transportStatus(c)
}

func (s *Server) setRecording(c *gin.Context) {
	var req struct {
		On bool `json:"on"`
	}
	if !bind(c, &req) {
		return
	}
	s.transport.SetRecording(req.On)
	s.transportStatus(c)
}

func (s *Server) setMaintain(c *gin.Context) {
	var req struct {
		On bool `json:"on"`
	}
	if !bind(c, &req) {
		return
	}
	s.transport.SetMaintainPosition(req.On)
	s.transportStatus(c)
}

func (s *Server) renderOptions(c *gin.Context) (render.Options, bool) {
	opt := s.render
	if v := c.Query("loops"); v != "" {
		loops, err := strconv.Atoi(v)
		if err != nil || loops < 0 {
			badRequest(c, "loops must be a non-negative integer")
			return opt, false
		}
		opt.Loops = loops
	}
	return opt, true
}

func (s *Server) renderWav(c *gin.Context) {
	opt, ok := s.renderOptions(c)
	if !ok {
		return
	}
	res, err := render.Render(c.Request.Context(), s.session.Snapshot(), opt)
	if err != nil {
		fail(c, err)
		return
	}
	data, err := render.Wav(res.Frames, res.SampleRate, c.Query("pcm16") == "true")
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename(s.session.Snapshot())+".wav"))
	c.Data(http.StatusOK, "audio/wav", data)
}

func (s *Server) renderMIDI(c *gin.Context) {
	opt, ok := s.renderOptions(c)
	if !ok {
		return
	}
	p := s.session.Snapshot()
	res, err := render.Render(c.Request.Context(), p, opt)
	if err != nil {
		fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := render.WriteMIDI(&buf, p, res); err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename(p)+".mid"))
	c.Data(http.StatusOK, "audio/midi", buf.Bytes())
}

func filename(p *sequencer.Project) string {
	name := strings.Map(func(r rune) rune {
		if r == '"' || r == '/' || r == '\\' || r < ' ' {
			return -1
		}
		return r
	}, p.Name)
	if name == "" {
		return "beatseq"
	}
	return name
}

func (s *Server) listProjects(c *gin.Context) {
	names, err := s.store.ListProjects()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": names, "current": s.project})
}

func (s *Server) listSaves(c *gin.Context) {
	saves, err := s.store.ListSaves(c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saves": saves})
}

func (s *Server) saveProject(c *gin.Context) {
	var req struct {
		Label string `json:"label"`
	}
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	s.session.Flush()
	info, err := s.store.Save(c.Param("name"), s.session.Snapshot(), req.Label)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (s *Server) loadProject(c *gin.Context) {
	var req struct {
		Filename string `json:"filename"`
	}
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	p, err := s.store.Load(c.Param("name"), req.Filename)
	if err != nil {
		fail(c, err)
		return
	}
	s.transport.Stop()
	s.session.Load(p)
	c.JSON(http.StatusOK, s.session.Snapshot())
}
