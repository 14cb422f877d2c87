package program

import (
	"errors"
	"fmt"
	"strings"
)

// Opcode names one body instruction.
type Opcode string

const (
	OpAdd      Opcode = "add"
	OpSub      Opcode = "sub"
	OpMul      Opcode = "mul"
	OpAssertEq Opcode = "assert.eq"
)

const programSuffix = ".aleo"

type bodyStage int

const (
	stageInputs bodyStage = iota
	stageBody
	stageOutputs
)

type parser struct {
	prog  *Program
	fn    *Function
	regs  map[string]Type
	stage bodyStage
}

// Parse parses and statically checks program source.
func Parse(source string) (*Program, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: empty source", ErrInvalidProgram)
	}
	p := &parser{
		prog: &Program{
			source: source,
			byName: make(map[string]*Function),
		},
	}
	for i, stmt := range splitStatements(source) {
		if err := p.statement(stmt); err != nil {
			return nil, fmt.Errorf("%w: statement %d %q: %v", ErrInvalidProgram, i+1, stmt, err)
		}
	}
	p.closeFunction()
	if p.prog.id == "" {
		return nil, fmt.Errorf("%w: missing program declaration", ErrInvalidProgram)
	}
	if len(p.prog.functions) == 0 {
		return nil, fmt.Errorf("%w: program %s declares no functions", ErrInvalidProgram, p.prog.id)
	}
	return p.prog, nil
}

// ParseImports returns the import list of source without checking the body.
// It is used to resolve dependencies of programs this parser may not accept.
func ParseImports(source string) []string {
	var out []string
	for _, stmt := range splitStatements(source) {
		fields := strings.Fields(stmt)
		if len(fields) == 2 && fields[0] == "import" && isProgramID(fields[1]) {
			out = append(out, fields[1])
		}
	}
	return out
}

// ParseProgramID returns the declared program id of source without checking
// the body.
func ParseProgramID(source string) (string, bool) {
	for _, stmt := range splitStatements(source) {
		fields := strings.Fields(stmt)
		if len(fields) == 2 && fields[0] == "program" && isProgramID(fields[1]) {
			return fields[1], true
		}
	}
	return "", false
}

// IsProgramID reports whether raw has the "<name>.aleo" shape.
func IsProgramID(raw string) bool {
	return isProgramID(strings.TrimSpace(raw))
}

func splitStatements(source string) []string {
	var b strings.Builder
	for _, line := range strings.Split(source, "\n") {
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var out []string
	for _, raw := range strings.Split(b.String(), ";") {
		s := strings.Join(strings.Fields(raw), " ")
		for strings.HasPrefix(s, "function ") {
			idx := strings.Index(s, ":")
			if idx < 0 {
				break
			}
			out = append(out, s[:idx+1])
			s = strings.TrimSpace(s[idx+1:])
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (p *parser) statement(stmt string) error {
	fields := strings.Fields(stmt)
	switch fields[0] {
	case "import":
		return p.importStmt(fields)
	case "program":
		return p.programStmt(fields)
	case "function":
		return p.functionStmt(fields)
	case "input":
		return p.inputStmt(fields)
	case "output":
		return p.outputStmt(fields)
	case string(OpAdd), string(OpSub), string(OpMul):
		return p.binaryStmt(Opcode(fields[0]), fields)
	case string(OpAssertEq):
		return p.assertStmt(fields)
	default:
		return fmt.Errorf("unknown statement %q", fields[0])
	}
}

func (p *parser) importStmt(fields []string) error {
	if p.prog.id != "" {
		return errors.New("imports must precede the program declaration")
	}
	if len(fields) != 2 || !isProgramID(fields[1]) {
		return errors.New("expected: import <name>.aleo")
	}
	for _, existing := range p.prog.imports {
		if existing == fields[1] {
			return fmt.Errorf("duplicate import %s", fields[1])
		}
	}
	p.prog.imports = append(p.prog.imports, fields[1])
	return nil
}

func (p *parser) programStmt(fields []string) error {
	if p.prog.id != "" {
		return errors.New("duplicate program declaration")
	}
	if len(fields) != 2 || !isProgramID(fields[1]) {
		return errors.New("expected: program <name>.aleo")
	}
	for _, imp := range p.prog.imports {
		if imp == fields[1] {
			return fmt.Errorf("program %s imports itself", imp)
		}
	}
	p.prog.id = fields[1]
	return nil
}

func (p *parser) functionStmt(fields []string) error {
	if p.prog.id == "" {
		return errors.New("function declared before program")
	}
	if len(fields) != 2 || !strings.HasSuffix(fields[1], ":") {
		return errors.New("expected: function <name>:")
	}
	name := strings.TrimSuffix(fields[1], ":")
	if !isIdentifier(name) {
		return fmt.Errorf("invalid function name %q", name)
	}
	p.closeFunction()
	if _, exists := p.prog.byName[name]; exists {
		return fmt.Errorf("duplicate function %s", name)
	}
	p.fn = &Function{Name: name}
	p.regs = make(map[string]Type)
	p.stage = stageInputs
	return nil
}

func (p *parser) inputStmt(fields []string) error {
	if p.fn == nil {
		return errors.New("input outside function")
	}
	if p.stage != stageInputs {
		return errors.New("inputs must precede instructions and outputs")
	}
	reg, t, vis, err := typedRegister(fields)
	if err != nil {
		return err
	}
	if _, exists := p.regs[reg]; exists {
		return fmt.Errorf("register %s already defined", reg)
	}
	p.regs[reg] = t
	p.fn.Inputs = append(p.fn.Inputs, Input{Register: reg, Type: t, Visibility: vis})
	return nil
}

func (p *parser) outputStmt(fields []string) error {
	if p.fn == nil {
		return errors.New("output outside function")
	}
	reg, t, vis, err := typedRegister(fields)
	if err != nil {
		return err
	}
	have, ok := p.regs[reg]
	if !ok {
		return fmt.Errorf("undefined register %s", reg)
	}
	if have != t {
		return fmt.Errorf("register %s is %s, declared output %s", reg, have, t)
	}
	p.stage = stageOutputs
	p.fn.Outputs = append(p.fn.Outputs, Output{Register: reg, Type: t, Visibility: vis})
	return nil
}

func (p *parser) binaryStmt(op Opcode, fields []string) error {
	if p.fn == nil {
		return fmt.Errorf("%s outside function", op)
	}
	if p.stage == stageOutputs {
		return errors.New("instructions must precede outputs")
	}
	if len(fields) != 5 || fields[3] != "into" {
		return fmt.Errorf("expected: %s <a> <b> into <register>", op)
	}
	operands, t, err := p.operands(fields[1:3])
	if err != nil {
		return err
	}
	dest := fields[4]
	if !isRegister(dest) {
		return fmt.Errorf("invalid destination %q", dest)
	}
	if _, exists := p.regs[dest]; exists {
		return fmt.Errorf("register %s already defined", dest)
	}
	p.regs[dest] = t
	p.stage = stageBody
	p.fn.Instructions = append(p.fn.Instructions, Instruction{Op: op, Operands: operands, Dest: dest, Type: t})
	return nil
}

func (p *parser) assertStmt(fields []string) error {
	if p.fn == nil {
		return errors.New("assert.eq outside function")
	}
	if p.stage == stageOutputs {
		return errors.New("instructions must precede outputs")
	}
	if len(fields) != 3 {
		return errors.New("expected: assert.eq <a> <b>")
	}
	operands, t, err := p.operands(fields[1:3])
	if err != nil {
		return err
	}
	p.stage = stageBody
	p.fn.Instructions = append(p.fn.Instructions, Instruction{Op: OpAssertEq, Operands: operands, Type: t})
	return nil
}

func (p *parser) operands(raw []string) ([]Operand, Type, error) {
	out := make([]Operand, 0, len(raw))
	var t Type
	for i, tok := range raw {
		var op Operand
		var opType Type
		if isRegister(tok) {
			rt, ok := p.regs[tok]
			if !ok {
				return nil, "", fmt.Errorf("undefined register %s", tok)
			}
			op = Operand{Register: tok}
			opType = rt
		} else {
			v, err := ParseValue(tok)
			if err != nil {
				return nil, "", err
			}
			op = Operand{Literal: &v}
			opType = v.Type
		}
		if i == 0 {
			t = opType
		} else if opType != t {
			return nil, "", fmt.Errorf("operand type mismatch %s vs %s", t, opType)
		}
		out = append(out, op)
	}
	return out, t, nil
}

func (p *parser) closeFunction() {
	if p.fn == nil {
		return
	}
	p.prog.functions = append(p.prog.functions, p.fn)
	p.prog.byName[p.fn.Name] = p.fn
	p.fn = nil
	p.regs = nil
}

// typedRegister parses "<kw> <reg> as <type>.<visibility>".
func typedRegister(fields []string) (string, Type, Visibility, error) {
	if len(fields) != 4 || fields[2] != "as" {
		return "", "", "", fmt.Errorf("expected: %s <register> as <type>.<public|private>", fields[0])
	}
	reg := fields[1]
	if !isRegister(reg) {
		return "", "", "", fmt.Errorf("invalid register %q", reg)
	}
	rawType, rawVis, ok := strings.Cut(fields[3], ".")
	if !ok {
		return "", "", "", fmt.Errorf("missing visibility on %q", fields[3])
	}
	t, ok := ParseType(rawType)
	if !ok {
		return "", "", "", fmt.Errorf("unsupported type %q", rawType)
	}
	vis := Visibility(rawVis)
	if vis != Public && vis != Private {
		return "", "", "", fmt.Errorf("invalid visibility %q", rawVis)
	}
	return reg, t, vis, nil
}

func isRegister(tok string) bool {
	if len(tok) < 2 || tok[0] != 'r' {
		return false
	}
	for i := 1; i < len(tok); i++ {
		if tok[i] < '0' || tok[i] > '9' {
			return false
		}
	}
	return true
}

func isProgramID(tok string) bool {
	name, ok := strings.CutSuffix(tok, programSuffix)
	return ok && isIdentifier(name)
}

func isIdentifier(tok string) bool {
	if tok == "" {
		return false
	}
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		isLower := c >= 'a' && c <= 'z'
		isUpper := c >= 'A' && c <= 'Z'
		isDigit := c >= '0' && c <= '9'
		if i == 0 && !(isLower || isUpper) {
			return false
		}
		if !(isLower || isUpper || isDigit || c == '_') {
			return false
		}
	}
	return true
}
