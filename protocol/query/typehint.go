package query

import (
	"strconv"
	"strings"

	"github.com/maxpert/powder/protocol/ast"
)

var (
	hintBoolean   = &ast.TypeName{Name: "BOOLEAN"}
	hintVarchar   = &ast.TypeName{Name: "VARCHAR"}
	hintFloat     = &ast.TypeName{Name: "FLOAT"}
	hintDate      = &ast.TypeName{Name: "DATE"}
	hintTime      = &ast.TypeName{Name: "TIME"}
	hintTimestamp = &ast.TypeName{Name: "TIMESTAMP_LTZ"}
	hintNTZ       = &ast.TypeName{Name: "TIMESTAMP_NTZ"}
	hintCount     = &ast.TypeName{Name: "NUMBER", Args: []string{"18", "0"}}
	hintQuotient  = &ast.TypeName{Name: "NUMBER", Args: []string{"38", "6"}}
)

var functionHints = map[string]*ast.TypeName{
	"TO_VARCHAR": hintVarchar, "TO_CHAR": hintVarchar, "UPPER": hintVarchar, "LOWER": hintVarchar,
	"CONCAT": hintVarchar, "SUBSTR": hintVarchar, "SUBSTRING": hintVarchar, "TRIM": hintVarchar,
	"LTRIM": hintVarchar, "RTRIM": hintVarchar, "REPLACE": hintVarchar, "LPAD": hintVarchar,
	"RPAD": hintVarchar, "SPLIT_PART": hintVarchar, "UUID_STRING": hintVarchar, "INITCAP": hintVarchar,
	"SYSTEM$WAIT": hintVarchar,

	"TO_BOOLEAN": hintBoolean, "TRY_TO_BOOLEAN": hintBoolean, "CONTAINS": hintBoolean,
	"STARTSWITH": hintBoolean, "ENDSWITH": hintBoolean, "REGEXP_LIKE": hintBoolean, "RLIKE": hintBoolean,

	"TO_DOUBLE": hintFloat, "SQRT": hintFloat, "LN": hintFloat, "EXP": hintFloat, "POWER": hintFloat,

	"CURRENT_DATE": hintDate, "TO_DATE": hintDate,
	"CURRENT_TIME": hintTime,
	"CURRENT_TIMESTAMP": hintTimestamp, "SYSDATE": hintNTZ, "GETDATE": hintTimestamp,
	"LOCALTIMESTAMP": hintTimestamp, "TO_TIMESTAMP": hintNTZ, "TO_TIMESTAMP_NTZ": hintNTZ,

	"COUNT": hintCount, "LENGTH": hintCount, "LEN": hintCount,
	"DIV0": hintQuotient,
}

// inferHints derives static result types for the computed columns of a
// query. Plain column references are left to the engine's declared types.
func inferHints(q *ast.Query) map[string]*ast.TypeName {
	sel := ast.LeftmostSelect(q)
	if sel == nil {
		return nil
	}
	hints := make(map[string]*ast.TypeName)
	for _, item := range sel.Columns {
		ei, ok := item.(*ast.ExprItem)
		if !ok || ei.Alias == nil {
			continue
		}
		if t := inferExpr(ei.Expr); t != nil {
			hints[ei.Alias.Name] = t
		}
	}
	if len(hints) == 0 {
		return nil
	}
	return hints
}

func inferExpr(e ast.Expr) *ast.TypeName {
	switch x := e.(type) {
	case *ast.Literal:
		return literalHint(x)
	case *ast.Cast:
		return x.Type
	case *ast.Paren:
		return inferExpr(x.Expr)
	case *ast.FuncCall:
		return functionHint(x)
	case *ast.BinaryExpr:
		return binaryHint(x)
	case *ast.UnaryExpr:
		if strings.EqualFold(x.Op, "NOT") {
			return hintBoolean
		}
		return inferExpr(x.Operand)
	case *ast.IsNullExpr, *ast.InExpr, *ast.BetweenExpr, *ast.LikeExpr, *ast.ExistsExpr:
		return hintBoolean
	case *ast.CaseExpr:
		for _, w := range x.Whens {
			if t := inferExpr(w.Result); t != nil {
				return t
			}
		}
		if x.Else != nil {
			return inferExpr(x.Else)
		}
	}
	return nil
}

// literalHint types a numeric literal the way the warehouse does: an exact
// NUMBER sized to its digits, or FLOAT for exponent notation.
func literalHint(l *ast.Literal) *ast.TypeName {
	switch l.Kind {
	case ast.BoolLit:
		return hintBoolean
	case ast.StringLit:
		return hintVarchar
	case ast.NumberLit:
		v := l.Value
		if strings.ContainsAny(v, "eE") {
			return hintFloat
		}
		whole, frac, _ := strings.Cut(v, ".")
		whole = strings.TrimLeft(whole, "0")
		prec := len(whole) + len(frac)
		if prec == 0 {
			prec = 1
		}
		return &ast.TypeName{Name: "NUMBER", Args: []string{strconv.Itoa(prec), strconv.Itoa(len(frac))}}
	}
	return nil
}

func functionHint(f *ast.FuncCall) *ast.TypeName {
	name := strings.ToUpper(f.Name)
	switch name {
	case "TO_DECIMAL", "TO_NUMBER", "TO_NUMERIC", "TRY_TO_DECIMAL", "TRY_TO_NUMBER", "TRY_TO_NUMERIC":
		args := f.Args
		// An optional format string sits between the value and precision.
		if len(args) > 1 {
			if lit, ok := args[1].(*ast.Literal); ok && lit.Kind == ast.StringLit {
				args = append([]ast.Expr{args[0]}, args[2:]...)
			}
		}
		t := &ast.TypeName{Name: "NUMBER", Args: []string{"38", "0"}}
		for i := 1; i < len(args) && i < 3; i++ {
			if lit, ok := args[i].(*ast.Literal); ok && lit.Kind == ast.NumberLit {
				t.Args[i-1] = lit.Value
			}
		}
		return t
	case "IFF", "IIF":
		if len(f.Args) == 3 {
			if t := inferExpr(f.Args[1]); t != nil {
				return t
			}
			return inferExpr(f.Args[2])
		}
	case "NVL", "IFNULL", "COALESCE", "ZEROIFNULL", "NULLIF":
		for _, a := range f.Args {
			if t := inferExpr(a); t != nil {
				return t
			}
		}
	case "ROUND", "TRUNC", "FLOOR", "CEIL", "ABS":
		if len(f.Args) > 0 {
			return inferExpr(f.Args[0])
		}
	}
	return functionHints[name]
}

func binaryHint(b *ast.BinaryExpr) *ast.TypeName {
	switch strings.ToUpper(b.Op) {
	case "=", "<>", "!=", "<", "<=", ">", ">=", "AND", "OR", "IS DISTINCT FROM", "IS NOT DISTINCT FROM":
		return hintBoolean
	case "||":
		return hintVarchar
	case "/":
		if isReal(inferExpr(b.Left)) || isReal(inferExpr(b.Right)) {
			return hintFloat
		}
		return hintQuotient
	case "+", "-", "*", "%":
		l, r := inferExpr(b.Left), inferExpr(b.Right)
		if l == nil || r == nil {
			return nil
		}
		if isReal(l) || isReal(r) {
			return hintFloat
		}
		if ast.CastFamily(l) == ast.FamilyFixed && ast.CastFamily(r) == ast.FamilyFixed {
			_, ls := ast.FixedPrecisionScale(l)
			_, rs := ast.FixedPrecisionScale(r)
			scale := max(ls, rs)
			if b.Op == "*" {
				scale = ls + rs
			}
			return &ast.TypeName{Name: "NUMBER", Args: []string{"38", strconv.Itoa(scale)}}
		}
	}
	return nil
}

func isReal(t *ast.TypeName) bool {
	return t != nil && ast.CastFamily(t) == ast.FamilyReal
}
