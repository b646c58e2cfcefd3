package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dop251/goja"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"tablowatch/internal/models"
)

// ErrEventRejected is returned when a rule or the script drops a record.
var ErrEventRejected = errors.New("event rejected by transformer")

// Config selects how records are shaped before they leave the process.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Script  string `yaml:"script"`
	Rules   []Rule `yaml:"rules"`
}

// Rule matches records by table id or venue name (empty matches all) and
// filters them by change type.
type Rule struct {
	Table     string            `yaml:"table"`
	Include   []string          `yaml:"include"`
	Exclude   []string          `yaml:"exclude"`
	AddFields map[string]string `yaml:"add_fields"`
}

// Transformer applies the configured rules or script to records.
type Transformer struct {
	config   Config
	logger   *logrus.Logger
	rules    []*ruleMatcher
	program  *goja.Program
	natsConn *nats.Conn
}

type ruleMatcher struct {
	table     string
	include   map[models.ChangeKind]bool
	exclude   map[models.ChangeKind]bool
	addFields map[string]string
}

// NewTransformer builds a transformer. natsConn may be nil; when set, the
// script gets a nats.publish binding.
func NewTransformer(cfg Config, logger *logrus.Logger, natsConn *nats.Conn) (*Transformer, error) {
	t := &Transformer{config: cfg, logger: logger, natsConn: natsConn}
	if !cfg.Enabled {
		return t, nil
	}

	if cfg.Script != "" {
		src, err := os.ReadFile(cfg.Script)
		if err != nil {
			return nil, fmt.Errorf("failed to read JavaScript script file: %w", err)
		}
		program, err := compileScript(cfg.Script, string(src))
		if err != nil {
			return nil, fmt.Errorf("invalid JavaScript script: %w", err)
		}
		t.program = program
		logger.Infof("Loaded JavaScript transformation script: %s", cfg.Script)
	}

	for _, rule := range cfg.Rules {
		m := &ruleMatcher{
			table:     rule.Table,
			include:   make(map[models.ChangeKind]bool),
			exclude:   make(map[models.ChangeKind]bool),
			addFields: rule.AddFields,
		}
		for _, kind := range rule.Include {
			m.include[models.ChangeKind(strings.ToLower(kind))] = true
		}
		for _, kind := range rule.Exclude {
			m.exclude[models.ChangeKind(strings.ToLower(kind))] = true
		}
		t.rules = append(t.rules, m)
	}

	return t, nil
}

// compileScript compiles src and checks that running it yields a function,
// either as the script's value or as a global named transform.
func compileScript(name, src string) (*goja.Program, error) {
	program, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, fmt.Errorf("failed to compile script: %w", err)
	}
	vm := goja.New()
	if _, err := transformFunc(vm, program); err != nil {
		return nil, err
	}
	return program, nil
}

func transformFunc(vm *goja.Runtime, program *goja.Program) (goja.Callable, error) {
	result, err := vm.RunProgram(program)
	if err != nil {
		return nil, fmt.Errorf("failed to execute script: %w", err)
	}
	if fn, ok := goja.AssertFunction(result); ok {
		return fn, nil
	}
	if fn, ok := goja.AssertFunction(vm.Get("transform")); ok {
		return fn, nil
	}
	return nil, fmt.Errorf("script must export a function (either anonymous function or named 'transform' function)")
}

// Transform returns the record to emit, or ErrEventRejected. The input is
// never modified.
func (t *Transformer) Transform(rec *models.Record) (*models.Record, error) {
	if !t.config.Enabled {
		return rec, nil
	}
	if t.program != nil {
		return t.transformWithJavaScript(rec)
	}
	if len(t.rules) > 0 {
		return t.transformWithRules(rec)
	}
	return rec, nil
}

func (t *Transformer) transformWithJavaScript(rec *models.Record) (*models.Record, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record to JSON: %w", err)
	}

	// goja.Runtime is not safe for concurrent use.
	vm := goja.New()
	if err := t.setupConsoleBindings(vm); err != nil {
		return nil, fmt.Errorf("failed to setup console bindings: %w", err)
	}
	if t.natsConn != nil {
		if err := t.setupNATSBindings(vm); err != nil {
			return nil, fmt.Errorf("failed to setup NATS bindings: %w", err)
		}
	}

	fn, err := transformFunc(vm, t.program)
	if err != nil {
		return nil, err
	}

	if err := vm.Set("recordJSON", string(raw)); err != nil {
		return nil, fmt.Errorf("failed to set record JSON: %w", err)
	}
	obj, err := vm.RunString("JSON.parse(recordJSON)")
	if err != nil {
		return nil, fmt.Errorf("failed to parse record JSON: %w", err)
	}

	result, err := fn(goja.Undefined(), obj)
	if err != nil {
		return nil, fmt.Errorf("JavaScript transform function error: %w", err)
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		t.logger.Infof("Record rejected by JavaScript transformer: %s on table %s", rec.Type, rec.TableID)
		return nil, ErrEventRejected
	}

	out, err := json.Marshal(result.Export())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	transformed := &models.Record{}
	if err := json.Unmarshal(out, transformed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return transformed, nil
}

func (t *Transformer) transformWithRules(rec *models.Record) (*models.Record, error) {
	var matched *ruleMatcher
	for _, rule := range t.rules {
		if rule.matches(rec) {
			matched = rule
			break
		}
	}
	if matched == nil {
		return rec, nil
	}

	if len(matched.include) > 0 && !matched.include[rec.Type] {
		return nil, ErrEventRejected
	}
	if matched.exclude[rec.Type] {
		return nil, ErrEventRejected
	}

	out := *rec
	if len(matched.addFields) > 0 {
		out.Labels = make(map[string]string, len(rec.Labels)+len(matched.addFields))
		for k, v := range rec.Labels {
			out.Labels[k] = v
		}
		for k, v := range matched.addFields {
			out.Labels[k] = v
		}
	}
	return &out, nil
}

func (r *ruleMatcher) matches(rec *models.Record) bool {
	if r.table == "" {
		return true
	}
	return r.table == rec.TableID || strings.EqualFold(r.table, rec.TableName)
}

func (t *Transformer) setupConsoleBindings(vm *goja.Runtime) error {
	console := vm.NewObject()
	format := func(call goja.FunctionCall) string {
		args := make([]any, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.Export()
		}
		return fmt.Sprint(args...)
	}

	bindings := map[string]func(...any){
		"log":   t.logger.Info,
		"info":  t.logger.Info,
		"warn":  t.logger.Warn,
		"error": t.logger.Error,
		"debug": t.logger.Debug,
	}
	for name, logFn := range bindings {
		logFn := logFn
		if err := console.Set(name, func(call goja.FunctionCall) goja.Value {
			logFn(format(call))
			return goja.Undefined()
		}); err != nil {
			return fmt.Errorf("failed to set console.%s: %w", name, err)
		}
	}
	return vm.Set("console", console)
}

// setupNATSBindings exposes nats.publish(subject, data) to the script.
func (t *Transformer) setupNATSBindings(vm *goja.Runtime) error {
	obj := vm.NewObject()
	publish := func(call goja.FunctionCall) goja.Value {
		subject := call.Argument(0).String()
		if subject == "" {
			panic(vm.NewTypeError("nats.publish: subject is required"))
		}
		arg := call.Argument(1)
		if goja.IsUndefined(arg) || goja.IsNull(arg) {
			panic(vm.NewTypeError("nats.publish: data is required"))
		}

		var data []byte
		switch v := arg.Export().(type) {
		case string:
			data = []byte(v)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				panic(vm.NewTypeError("nats.publish: failed to marshal data: %v", err))
			}
			data = b
		}

		if err := t.natsConn.Publish(subject, data); err != nil {
			t.logger.Errorf("NATS publish error: %v", err)
			panic(vm.NewGoError(err))
		}
		t.logger.Debugf("Published to NATS subject: %s", subject)
		return goja.Undefined()
	}
	if err := obj.Set("publish", publish); err != nil {
		return fmt.Errorf("failed to set publish function: %w", err)
	}
	return vm.Set("nats", obj)
}

// ValidateConfig checks processor settings before startup.
func ValidateConfig(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Script != "" {
		if _, err := os.Stat(cfg.Script); os.IsNotExist(err) {
			return fmt.Errorf("JavaScript script file not found: %s", cfg.Script)
		}
		if len(cfg.Rules) > 0 {
			return fmt.Errorf("cannot specify both 'script' and 'rules' - script takes precedence")
		}
	}

	known := map[models.ChangeKind]bool{
		models.KindUserJoined:        true,
		models.KindUserLeft:          true,
		models.KindTableUpdated:      true,
		models.KindParticipantJoined: true,
		models.KindParticipantLeft:   true,
	}
	for i, rule := range cfg.Rules {
		if len(rule.Include) > 0 && len(rule.Exclude) > 0 {
			return fmt.Errorf("processor rule %d: cannot specify both 'include' and 'exclude'", i)
		}
		for _, kind := range append(append([]string{}, rule.Include...), rule.Exclude...) {
			if !known[models.ChangeKind(strings.ToLower(kind))] {
				return fmt.Errorf("processor rule %d: unknown change type '%s'", i, kind)
			}
		}
	}
	return nil
}
