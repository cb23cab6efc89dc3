package main

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"

	"github.com/Metrological/jscinspect/compinfo"
	"github.com/Metrological/jscinspect/corefile"
)

type server struct {
	program *corefile.Program
	disp    atomic.Pointer[compinfo.Dispatcher] // swapped by watchLayout
	logger  log.Logger
	types   *typeIDs
}

func newServer(p *corefile.Program, disp *compinfo.Dispatcher, logger log.Logger) *server {
	s := &server{program: p, logger: logger, types: newTypeIDs()}
	s.disp.Store(disp)
	return s
}

func (s *server) dispatcher() *compinfo.Dispatcher {
	return s.disp.Load()
}

func (s *server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.mainHandler).Methods(http.MethodGet)
	r.HandleFunc("/globals", s.globalsHandler).Methods(http.MethodGet)
	r.HandleFunc("/var/{name}", s.varHandler).Methods(http.MethodGet)
	r.HandleFunc("/obj", s.objHandler).Methods(http.MethodGet)
	return r
}

// typeIDs gives every Type shown on a page a small integer, so that links to
// /obj can name unnamed types such as "char*".
type typeIDs struct {
	mu   sync.Mutex
	ids  map[corefile.Type]int
	byID map[int]corefile.Type
}

func newTypeIDs() *typeIDs {
	return &typeIDs{ids: map[corefile.Type]int{}, byID: map[int]corefile.Type{}}
}

func (ti *typeIDs) id(t corefile.Type) int {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if id, ok := ti.ids[t]; ok {
		return id
	}
	id := len(ti.ids) + 1
	ti.ids[t] = id
	ti.byID[id] = t
	return id
}

func (ti *typeIDs) lookup(id int) corefile.Type {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return ti.byID[id]
}

// lookupParam looks up an integer value in the query.
func lookupParam(q url.Values, param string, base int) (uint64, error) {
	v := q[param]
	if len(v) != 1 {
		return 0, fmt.Errorf("parameter %s not found", param)
	}
	x, err := strconv.ParseUint(v[0], base, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse parameter %s (%q): %w", param, v[0], err)
	}
	return x, nil
}

func (s *server) execute(w http.ResponseWriter, t *template.Template, data any) {
	if err := t.Execute(w, data); err != nil {
		level.Error(s.logger).Log("msg", "rendering page", "page", t.Name(), "err", err)
	}
}

type mainInfo struct {
	ExecPath    string
	PID         uint64
	Arch        string
	ByteOrder   string
	PointerSize int
	Tags        compinfo.Tags
	NumGlobals  int
	Rings       []varInfo
}

func (s *server) mainHandler(w http.ResponseWriter, r *http.Request) {
	p := s.program
	disp := s.dispatcher()
	info := mainInfo{
		ExecPath:    p.ExecPath,
		PID:         p.PID,
		Arch:        p.Arch.Name,
		ByteOrder:   p.Arch.ByteOrder.String(),
		PointerSize: p.Arch.PointerSize,
		Tags:        disp.Tags(),
		NumGlobals:  p.GlobalVars.Len(),
	}
	for v := range p.GlobalVars.All() {
		if disp.Matches(v.Value.TypeName()) {
			info.Rings = append(info.Rings, s.makeVarInfo(v))
		}
	}
	s.execute(w, mainTemplate, info)
}

type globalsInfo struct {
	Scope  string
	Scopes []string
	Infos  []varInfo
}

func (s *server) globalsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if len(q["scope"]) == 0 {
		// Show a list of scopes with global vars.
		seen := map[string]bool{}
		var info globalsInfo
		for v := range s.program.GlobalVars.All() {
			if !seen[v.Scope] {
				seen[v.Scope] = true
				info.Scopes = append(info.Scopes, v.Scope)
			}
		}
		sort.Strings(info.Scopes)
		s.execute(w, scopesTemplate, info)
		return
	}

	// Show every global variable in this scope.
	info := globalsInfo{Scope: q["scope"][0]}
	for v := range s.program.GlobalVars.All() {
		if v.Scope == info.Scope {
			info.Infos = append(info.Infos, s.makeVarInfo(v))
		}
	}
	s.execute(w, globalsTemplate, info)
}

func (s *server) varHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	v, ok := s.program.GlobalVars.FindName(name)
	if !ok {
		http.Error(w, fmt.Sprintf("no global variable %q", name), http.StatusNotFound)
		return
	}
	s.renderObj(w, r, v.FullName(), v.Value)
}

func (s *server) objHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	addr, err := lookupParam(q, "addr", 16)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	t, err := s.lookupType(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, err := s.program.Value(addr, t)
	if err != nil {
		http.Error(w, fmt.Sprintf("could not load value from 0x%x with type %s: %v", addr, t, err), http.StatusBadRequest)
		return
	}
	s.renderObj(w, r, fmt.Sprintf("0x%x", addr), v)
}

// lookupType reads the "type" parameter, which is either an id from a link or
// a qualified type name.
func (s *server) lookupType(q url.Values) (corefile.Type, error) {
	if len(q["type"]) != 1 {
		return nil, fmt.Errorf("parameter type not found")
	}
	if id, err := strconv.Atoi(q["type"][0]); err == nil {
		if t := s.types.lookup(id); t != nil {
			return t, nil
		}
		return nil, fmt.Errorf("unknown type id %d", id)
	}
	if t := s.program.FindType(q["type"][0]); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("unknown type %q", q["type"][0])
}

type objInfo struct {
	Name           string
	Addr           template.HTML
	Type           string
	Size           string
	Printed        *printedInfo
	Fields         []varInfo
	FieldsOverflow template.HTML
}

func (s *server) renderObj(w http.ResponseWriter, r *http.Request, name string, v corefile.Value) {
	const defaultMaxFields = 1024
	maxFields, err := lookupParam(r.URL.Query(), "maxfields", 10)
	if err != nil {
		maxFields = defaultMaxFields
	}

	info := objInfo{
		Name: name,
		Addr: s.linkValue(v),
		Type: v.Type.String(),
		Size: humanize.IBytes(v.Size()),
	}
	if pr, ok := s.dispatcher().Lookup(v); ok {
		info.Printed = renderPrinter(pr)
	}

	all := true
	s.fmtValue(v, "", func(fv corefile.Value, name string, value template.HTML) error {
		if uint64(len(info.Fields)) >= maxFields {
			all = false
			return errFieldLimit
		}
		vi := varInfo{Name: name, Value: value}
		if fv.Type != nil {
			vi.Addr = s.linkValue(fv)
			vi.Type = fv.Type.String()
		}
		info.Fields = append(info.Fields, vi)
		return nil
	})
	if !all {
		info.FieldsOverflow = template.HTML(fmt.Sprintf(
			"... truncated to %d fields (<a href=\"/obj?addr=%x&type=%d&maxfields=%d\">show all</a>)",
			maxFields, v.Addr, s.types.id(v.Type), uint64(1)<<32))
	}
	s.execute(w, objTemplate, info)
}
