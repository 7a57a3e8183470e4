package exec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"graphlite/internal/ast"
	"graphlite/internal/gqlerr"
	"graphlite/internal/value"
)

// hasLabelFunc mirrors the planner's synthetic marker name
// (internal/planner/build.go): a node label beyond the pattern's first
// is lowered to HAS_LABEL(var, 'Label') rather than re-running the
// parser's expression grammar, so Eval must resolve it here against
// value.Node.HasLabel.
const hasLabelFunc = "HAS_LABEL"

// Eval evaluates e against row's bindings and the statement's
// parameters. It is the runtime counterpart to the planner's
// constant-folding evaluator (internal/planner/rewrite.go foldConst):
// that one only ever sees literal-only subtrees at plan time, this one
// runs for every row at execution time.
func Eval(row Row, params map[string]value.Value, e ast.Expr) (value.Value, error) {
	switch ex := e.(type) {
	case nil:
		return value.Null, nil
	case *ast.Literal:
		return ex.Value, nil
	case *ast.VarExpr:
		if v, ok := row.Get(ex.Name); ok {
			return v, nil
		}
		return value.Null, nil
	case *ast.ParamExpr:
		if v, ok := params[ex.Name]; ok {
			return v, nil
		}
		return value.Null, nil
	case *ast.PropertyAccessExpr:
		target, err := Eval(row, params, ex.Target)
		if err != nil {
			return value.Null, err
		}
		return propertyOf(target, ex.Property), nil
	case *ast.BinaryExpr:
		return evalBinary(row, params, ex)
	case *ast.UnaryExpr:
		return evalUnary(row, params, ex)
	case *ast.FuncCallExpr:
		return evalFunc(row, params, ex)
	case *ast.CaseExpr:
		return evalCase(row, params, ex)
	case *ast.ListExpr:
		items := make([]value.Value, len(ex.Items))
		for i, it := range ex.Items {
			v, err := Eval(row, params, it)
			if err != nil {
				return value.Null, err
			}
			items[i] = v
		}
		return value.List(items), nil
	case *ast.MapExpr:
		m := make(map[string]value.Value, len(ex.Entries))
		for k, it := range ex.Entries {
			v, err := Eval(row, params, it)
			if err != nil {
				return value.Null, err
			}
			m[k] = v
		}
		return value.Map(m), nil
	default:
		return value.Null, gqlerr.Internalf("exec: unhandled expression %T", e)
	}
}

func propertyOf(target value.Value, prop string) value.Value {
	switch target.Kind {
	case value.KindNode:
		if target.Node == nil {
			return value.Null
		}
		if v, ok := target.Node.Properties[prop]; ok {
			return v
		}
		return value.Null
	case value.KindEdge:
		if target.Edge == nil {
			return value.Null
		}
		if v, ok := target.Edge.Properties[prop]; ok {
			return v
		}
		return value.Null
	case value.KindMap:
		if v, ok := target.Map[prop]; ok {
			return v
		}
		return value.Null
	default:
		return value.Null
	}
}

func evalBinary(row Row, params map[string]value.Value, ex *ast.BinaryExpr) (value.Value, error) {
	if ex.Op == ast.OpAnd || ex.Op == ast.OpOr {
		l, err := Eval(row, params, ex.Left)
		if err != nil {
			return value.Null, err
		}
		r, err := Eval(row, params, ex.Right)
		if err != nil {
			return value.Null, err
		}
		return threeValuedLogic(ex.Op, l, r), nil
	}

	l, err := Eval(row, params, ex.Left)
	if err != nil {
		return value.Null, err
	}
	r, err := Eval(row, params, ex.Right)
	if err != nil {
		return value.Null, err
	}

	if ex.Op == ast.OpIn {
		return inList(l, r), nil
	}

	switch ex.Op {
	case ast.OpEq:
		if l.IsNull() || r.IsNull() {
			return value.Null, nil
		}
		return value.Bool(value.Equal(l, r)), nil
	case ast.OpNeq:
		if l.IsNull() || r.IsNull() {
			return value.Null, nil
		}
		return value.Bool(!value.Equal(l, r)), nil
	}

	if l.IsNull() || r.IsNull() {
		return value.Null, nil
	}

	switch ex.Op {
	case ast.OpAdd:
		if v, ok := value.Add(l, r); ok {
			return v, nil
		}
		return value.Null, typeErr("+", l, r)
	case ast.OpSub:
		if v, ok := value.Sub(l, r); ok {
			return v, nil
		}
		return value.Null, typeErr("-", l, r)
	case ast.OpMul:
		if v, ok := value.Mul(l, r); ok {
			return v, nil
		}
		return value.Null, typeErr("*", l, r)
	case ast.OpDiv:
		v, ok, divByZero := value.Div(l, r)
		if divByZero {
			return value.Null, gqlerr.New(gqlerr.TypeError, "division by zero")
		}
		if ok {
			return v, nil
		}
		return value.Null, typeErr("/", l, r)
	case ast.OpMod:
		return evalMod(l, r)
	case ast.OpLt, ast.OpGt, ast.OpLte, ast.OpGte:
		cmp, ok := value.Compare(l, r)
		if !ok {
			return value.Null, nil
		}
		return value.Bool(compareSatisfies(ex.Op, cmp)), nil
	case ast.OpXor:
		lb, lok := asBool(l)
		rb, rok := asBool(r)
		if !lok || !rok {
			return value.Null, nil
		}
		return value.Bool(lb != rb), nil
	default:
		return value.Null, gqlerr.Internalf("exec: unhandled binary operator %v", ex.Op)
	}
}

func compareSatisfies(op ast.BinaryOp, cmp int) bool {
	switch op {
	case ast.OpLt:
		return cmp < 0
	case ast.OpGt:
		return cmp > 0
	case ast.OpLte:
		return cmp <= 0
	case ast.OpGte:
		return cmp >= 0
	default:
		return false
	}
}

func threeValuedLogic(op ast.BinaryOp, l, r value.Value) value.Value {
	lb, lok := asBool(l)
	rb, rok := asBool(r)
	switch op {
	case ast.OpAnd:
		if lok && !lb {
			return value.Bool(false)
		}
		if rok && !rb {
			return value.Bool(false)
		}
		if lok && rok {
			return value.Bool(lb && rb)
		}
		return value.Null
	case ast.OpOr:
		if lok && lb {
			return value.Bool(true)
		}
		if rok && rb {
			return value.Bool(true)
		}
		if lok && rok {
			return value.Bool(lb || rb)
		}
		return value.Null
	default:
		return value.Null
	}
}

func inList(l, r value.Value) value.Value {
	if l.IsNull() || r.Kind != value.KindList {
		return value.Null
	}
	for _, item := range r.List {
		if value.Equal(l, item) {
			return value.Bool(true)
		}
	}
	return value.Bool(false)
}

func evalUnary(row Row, params map[string]value.Value, ex *ast.UnaryExpr) (value.Value, error) {
	v, err := Eval(row, params, ex.Operand)
	if err != nil {
		return value.Null, err
	}
	switch ex.Op {
	case ast.OpNot:
		b, ok := asBool(v)
		if !ok {
			return value.Null, nil
		}
		return value.Bool(!b), nil
	case ast.OpNeg:
		if v.IsNull() {
			return value.Null, nil
		}
		switch v.Kind {
		case value.KindInt:
			return value.Int(-v.Int), nil
		case value.KindFloat:
			return value.Float(-v.Float), nil
		default:
			return value.Null, gqlerr.New(gqlerr.TypeError, "cannot negate a non-numeric value")
		}
	case ast.OpIsNull:
		return value.Bool(v.IsNull()), nil
	case ast.OpIsNotNull:
		return value.Bool(!v.IsNull()), nil
	default:
		return value.Null, gqlerr.Internalf("exec: unhandled unary operator %v", ex.Op)
	}
}

func evalCase(row Row, params map[string]value.Value, ex *ast.CaseExpr) (value.Value, error) {
	hasOperand := ex.Operand != nil
	var operand value.Value
	if hasOperand {
		v, err := Eval(row, params, ex.Operand)
		if err != nil {
			return value.Null, err
		}
		operand = v
	}
	for _, w := range ex.Whens {
		cv, err := Eval(row, params, w.Cond)
		if err != nil {
			return value.Null, err
		}
		if hasOperand {
			if value.Equal(operand, cv) {
				return Eval(row, params, w.Then)
			}
			continue
		}
		if cv.Truthy() {
			return Eval(row, params, w.Then)
		}
	}
	if ex.Else != nil {
		return Eval(row, params, ex.Else)
	}
	return value.Null, nil
}

func evalFunc(row Row, params map[string]value.Value, ex *ast.FuncCallExpr) (value.Value, error) {
	name := strings.ToUpper(ex.Name)

	if name == hasLabelFunc {
		if len(ex.Args) != 2 {
			return value.Null, gqlerr.Internalf("exec: %s expects 2 arguments", hasLabelFunc)
		}
		target, err := Eval(row, params, ex.Args[0])
		if err != nil {
			return value.Null, err
		}
		label, err := Eval(row, params, ex.Args[1])
		if err != nil {
			return value.Null, err
		}
		if target.Kind != value.KindNode || target.Node == nil {
			return value.Bool(false), nil
		}
		return value.Bool(target.Node.HasLabel(label.Str)), nil
	}

	args := make([]value.Value, len(ex.Args))
	for i, a := range ex.Args {
		v, err := Eval(row, params, a)
		if err != nil {
			return value.Null, err
		}
		args[i] = v
	}

	switch name {
	case "UPPER":
		return applyStr(args, strings.ToUpper)
	case "LOWER":
		return applyStr(args, strings.ToLower)
	case "LENGTH":
		return builtinLength(args)
	case "ABS":
		return builtinAbs(args)
	case "TOSTRING":
		return builtinToString(args)
	case "TOINTEGER":
		return builtinToInteger(args)
	case "TOFLOAT":
		return builtinToFloat(args)
	case "SUBSTRING":
		return builtinSubstring(args)
	case "NOW":
		return value.DateTime(time.Now().UTC()), nil
	case "TRIM":
		return applyStr(args, strings.TrimSpace)
	case "CONCAT":
		return builtinConcat(args)
	case "DATE":
		return builtinTemporal(args, "DATE", "2006-01-02", value.Date)
	case "TIME":
		return builtinTemporal(args, "TIME", "15:04:05", value.TimeOfDay)
	case "DATETIME":
		return builtinTemporal(args, "DATETIME", time.RFC3339, value.DateTime)
	case "CEIL":
		return builtinRound(args, math.Ceil)
	case "FLOOR":
		return builtinRound(args, math.Floor)
	case "ROUND":
		return builtinRound(args, math.Round)
	case "SQRT":
		return builtinSqrt(args)
	case "POW":
		return builtinPow(args)
	case "COALESCE":
		for _, a := range args {
			if !a.IsNull() {
				return a, nil
			}
		}
		return value.Null, nil
	default:
		return value.Null, gqlerr.New(gqlerr.UnknownProcedure, fmt.Sprintf("unknown function %q", ex.Name))
	}
}

func applyStr(args []value.Value, f func(string) string) (value.Value, error) {
	if len(args) != 1 {
		return value.Null, gqlerr.Internalf("exec: string function expects 1 argument")
	}
	if args[0].IsNull() {
		return value.Null, nil
	}
	if args[0].Kind != value.KindString {
		return value.Null, gqlerr.New(gqlerr.TypeError, "string function expects a string argument")
	}
	return value.Str(f(args[0].Str)), nil
}

func builtinLength(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null, gqlerr.Internalf("exec: LENGTH expects 1 argument")
	}
	v := args[0]
	switch v.Kind {
	case value.KindNull:
		return value.Null, nil
	case value.KindString:
		return value.Int(int64(len([]rune(v.Str)))), nil
	case value.KindList:
		return value.Int(int64(len(v.List))), nil
	default:
		return value.Null, gqlerr.New(gqlerr.TypeError, "LENGTH expects a string or list")
	}
}

func builtinAbs(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null, gqlerr.Internalf("exec: ABS expects 1 argument")
	}
	v := args[0]
	switch v.Kind {
	case value.KindNull:
		return value.Null, nil
	case value.KindInt:
		if v.Int < 0 {
			return value.Int(-v.Int), nil
		}
		return v, nil
	case value.KindFloat:
		return value.Float(math.Abs(v.Float)), nil
	default:
		return value.Null, gqlerr.New(gqlerr.TypeError, "ABS expects a numeric value")
	}
}

func builtinToString(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null, gqlerr.Internalf("exec: TOSTRING expects 1 argument")
	}
	if args[0].IsNull() {
		return value.Null, nil
	}
	return value.Str(args[0].String()), nil
}

func builtinToInteger(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null, gqlerr.Internalf("exec: TOINTEGER expects 1 argument")
	}
	v := args[0]
	switch v.Kind {
	case value.KindNull:
		return value.Null, nil
	case value.KindInt:
		return v, nil
	case value.KindFloat:
		return value.Int(int64(v.Float)), nil
	case value.KindString:
		i, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err != nil {
			return value.Null, nil
		}
		return value.Int(i), nil
	default:
		return value.Null, gqlerr.New(gqlerr.TypeError, "TOINTEGER expects a numeric or string value")
	}
}

func builtinToFloat(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null, gqlerr.Internalf("exec: TOFLOAT expects 1 argument")
	}
	v := args[0]
	switch v.Kind {
	case value.KindNull:
		return value.Null, nil
	case value.KindFloat:
		return v, nil
	case value.KindInt:
		return value.Float(float64(v.Int)), nil
	case value.KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return value.Null, nil
		}
		return value.Float(f), nil
	default:
		return value.Null, gqlerr.New(gqlerr.TypeError, "TOFLOAT expects a numeric or string value")
	}
}

func builtinSubstring(args []value.Value) (value.Value, error) {
	if len(args) != 3 {
		return value.Null, gqlerr.Internalf("exec: SUBSTRING expects 3 arguments")
	}
	s, start, length := args[0], args[1], args[2]
	if s.IsNull() {
		return value.Null, nil
	}
	if s.Kind != value.KindString {
		return value.Null, gqlerr.New(gqlerr.TypeError, "SUBSTRING expects a string")
	}
	startF, ok := start.AsFloat64()
	if !ok {
		return value.Null, gqlerr.New(gqlerr.TypeError, "SUBSTRING start must be numeric")
	}
	lenF, ok := length.AsFloat64()
	if !ok {
		return value.Null, gqlerr.New(gqlerr.TypeError, "SUBSTRING length must be numeric")
	}
	runes := []rune(s.Str)
	b := int(startF)
	if b < 0 {
		b = 0
	}
	if b > len(runes) {
		b = len(runes)
	}
	e := b + int(lenF)
	if e > len(runes) {
		e = len(runes)
	}
	if e < b {
		e = b
	}
	return value.Str(string(runes[b:e])), nil
}

func builtinConcat(args []value.Value) (value.Value, error) {
	var b strings.Builder
	for _, a := range args {
		if a.IsNull() {
			return value.Null, nil
		}
		if a.Kind != value.KindString {
			return value.Null, gqlerr.New(gqlerr.TypeError, "CONCAT expects string arguments")
		}
		b.WriteString(a.Str)
	}
	return value.Str(b.String()), nil
}

// builtinTemporal backs DATE/TIME/DATETIME: called with no arguments
// it returns the current moment; called with one string argument it
// parses that string under layout.
func builtinTemporal(args []value.Value, name, layout string, wrap func(time.Time) value.Value) (value.Value, error) {
	switch len(args) {
	case 0:
		return wrap(time.Now().UTC()), nil
	case 1:
		v := args[0]
		if v.IsNull() {
			return value.Null, nil
		}
		if v.Kind != value.KindString {
			return value.Null, gqlerr.New(gqlerr.TypeError, name+" expects a string argument")
		}
		t, err := time.Parse(layout, v.Str)
		if err != nil {
			return value.Null, gqlerr.New(gqlerr.TypeError, name+": "+err.Error())
		}
		return wrap(t.UTC()), nil
	default:
		return value.Null, gqlerr.Internalf("exec: %s expects 0 or 1 arguments", name)
	}
}

func builtinRound(args []value.Value, f func(float64) float64) (value.Value, error) {
	if len(args) != 1 {
		return value.Null, gqlerr.Internalf("exec: round function expects 1 argument")
	}
	v := args[0]
	switch v.Kind {
	case value.KindNull:
		return value.Null, nil
	case value.KindInt:
		return v, nil
	case value.KindFloat:
		return value.Float(f(v.Float)), nil
	default:
		return value.Null, gqlerr.New(gqlerr.TypeError, "expects a numeric value")
	}
}

func builtinSqrt(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null, gqlerr.Internalf("exec: SQRT expects 1 argument")
	}
	if args[0].IsNull() {
		return value.Null, nil
	}
	f, ok := args[0].AsFloat64()
	if !ok {
		return value.Null, gqlerr.New(gqlerr.TypeError, "SQRT expects a numeric value")
	}
	return value.Float(math.Sqrt(f)), nil
}

func builtinPow(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Null, gqlerr.Internalf("exec: POW expects 2 arguments")
	}
	if args[0].IsNull() || args[1].IsNull() {
		return value.Null, nil
	}
	base, ok := args[0].AsFloat64()
	if !ok {
		return value.Null, gqlerr.New(gqlerr.TypeError, "POW expects numeric arguments")
	}
	exp, ok := args[1].AsFloat64()
	if !ok {
		return value.Null, gqlerr.New(gqlerr.TypeError, "POW expects numeric arguments")
	}
	return value.Float(math.Pow(base, exp)), nil
}

func evalMod(l, r value.Value) (value.Value, error) {
	if !l.IsNumber() || !r.IsNumber() {
		return value.Null, gqlerr.New(gqlerr.TypeError, "% expects numeric operands")
	}
	rf, _ := r.AsFloat64()
	if rf == 0 {
		return value.Null, gqlerr.New(gqlerr.TypeError, "division by zero")
	}
	if l.Kind == value.KindInt && r.Kind == value.KindInt {
		return value.Int(l.Int % r.Int), nil
	}
	lf, _ := l.AsFloat64()
	return value.Float(math.Mod(lf, rf)), nil
}

func typeErr(op string, l, r value.Value) error {
	return gqlerr.New(gqlerr.TypeError, fmt.Sprintf("operator %s not defined for %s and %s", op, l.Kind, r.Kind))
}

func asBool(v value.Value) (bool, bool) {
	if v.Kind == value.KindBool {
		return v.Bool, true
	}
	return false, false
}
