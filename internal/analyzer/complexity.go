package analyzer

import (
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"regexp"
	"strings"

	"codementor/internal/types/mentor"
)

// goComplexity averages cyclomatic complexity over the functions in a Go file.
// Files with no functions report nil; unparseable files report nil plus a warning.
func goComplexity(name, content string) (*float64, *mentor.Warning) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, name, content, parser.SkipObjectResolution)
	if err != nil {
		line := 1
		if list, ok := err.(scanner.ErrorList); ok && len(list) > 0 {
			line = list[0].Pos.Line
		}
		return nil, &mentor.Warning{Line: line, Message: "SyntaxError: Unable to parse Go source."}
	}

	var total, funcs int
	ast.Inspect(file, func(n ast.Node) bool {
		switch fn := n.(type) {
		case *ast.FuncDecl:
			if fn.Body != nil {
				total += cyclomatic(fn.Body)
				funcs++
			}
			return false
		case *ast.FuncLit:
			total += cyclomatic(fn.Body)
			funcs++
			return false
		}
		return true
	})
	if funcs == 0 {
		return nil, nil
	}
	avg := float64(total) / float64(funcs)
	return &avg, nil
}

func cyclomatic(body ast.Node) int {
	c := 1
	ast.Inspect(body, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
			c++
		case *ast.CaseClause:
			if x.List != nil {
				c++
			}
		case *ast.CommClause:
			if x.Comm != nil {
				c++
			}
		case *ast.BinaryExpr:
			if x.Op == token.LAND || x.Op == token.LOR {
				c++
			}
		case *ast.FuncLit:
			// Nested literals are measured on their own.
			return false
		}
		return true
	})
	return c
}

var (
	rePyDef      = regexp.MustCompile(`^\s*(async\s+)?def\s+\w+`)
	rePyDecision = regexp.MustCompile(`\b(if|elif|for|while|except|and|or|case)\b`)
)

// pythonComplexity approximates per-function cyclomatic complexity by counting
// decision keywords inside each def block. Files without functions report nil.
func pythonComplexity(content string) *float64 {
	var blocks []int
	for _, line := range strings.Split(content, "\n") {
		code := stripPyComment(line)
		if rePyDef.MatchString(code) {
			blocks = append(blocks, 1)
			continue
		}
		if len(blocks) == 0 {
			continue
		}
		blocks[len(blocks)-1] += len(rePyDecision.FindAllString(code, -1))
	}
	if len(blocks) == 0 {
		return nil
	}
	total := 0
	for _, b := range blocks {
		total += b
	}
	avg := float64(total) / float64(len(blocks))
	return &avg
}

// stripPyComment drops a trailing # comment and the contents of simple string literals.
func stripPyComment(line string) string {
	var b strings.Builder
	var quote rune
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '#':
			return b.String()
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
