// Constant expression evaluation for #if and #elif.
package cpp

import "fmt"

// exprState holds the lookahead and error bookkeeping of one #if
// expression.
type exprState struct {
	unget  *Token
	failed bool // an error was reported in this expression
	skip   int  // >0 while evaluating an operand whose value is unused
}

// evalCondition evaluates the rest of the directive line as a constant
// expression and returns its value with the token ending the line. A
// faulty operand or operation contributes 0 and evaluation goes on.
func (p *Preprocessor) evalCondition() (int64, Token, error) {
	p.expr = exprState{}
	tok, err := p.exprToken()
	if err != nil {
		return 0, Token{}, err
	}
	if tok.Type == PP_NEWLINE || tok.Type == PP_EOF {
		return 0, tok, p.exprError(tok, "#if with no expression")
	}
	p.exprUntoken(tok)
	v, err := p.evalExpr(0)
	if err != nil {
		return 0, Token{}, err
	}
	nl, err := p.endCondition()
	if err != nil {
		return 0, Token{}, err
	}
	return v, nl, nil
}

// endCondition consumes the end of an #if or #elif line.
func (p *Preprocessor) endCondition() (Token, error) {
	tok, err := p.exprToken()
	if err != nil {
		return Token{}, err
	}
	if tok.Type == PP_NEWLINE || tok.Type == PP_EOF {
		return tok, nil
	}
	if !p.expr.failed {
		if err := p.exprError(tok, "Missing binary operator before token "+describe(tok)); err != nil {
			return Token{}, err
		}
	}
	return p.skipline(false)
}

func (p *Preprocessor) exprUntoken(tok Token) {
	p.expr.unget = &tok
}

func (p *Preprocessor) exprError(tok Token, msg string) error {
	p.expr.failed = true
	return p.errorTok(tok, msg)
}

// exprToken returns the next macro-expanded non-whitespace token of the
// expression, replacing defined X and defined(X) by 1 or 0.
func (p *Preprocessor) exprToken() (Token, error) {
	if t := p.expr.unget; t != nil {
		p.expr.unget = nil
		return *t, nil
	}
	tok, err := p.expandedTokenNonwhite()
	if err != nil {
		return Token{}, err
	}
	if tok.Type != PP_IDENTIFIER || tok.Text != "defined" {
		return tok, nil
	}

	la, err := p.sourceTokenNonwhite()
	if err != nil {
		return Token{}, err
	}
	paren := false
	if la.Is("(") {
		paren = true
		if la, err = p.sourceTokenNonwhite(); err != nil {
			return Token{}, err
		}
	}
	result := intToken(0).withLoc(tok.Loc)
	if la.Type != PP_IDENTIFIER {
		if la.Type == PP_NEWLINE || la.Type == PP_EOF {
			p.untoken(la)
		}
		if err := p.exprError(la, "defined() needs identifier, not "+describe(la)); err != nil {
			return Token{}, err
		}
		return result, nil
	}
	if p.macros.IsDefined(la.Text) {
		result = intToken(1).withLoc(tok.Loc)
	}
	if paren {
		la, err = p.sourceTokenNonwhite()
		if err != nil {
			return Token{}, err
		}
		if !la.Is(")") {
			p.untoken(la)
			if err := p.exprError(la, "Missing ) in defined(). Got "+describe(la)); err != nil {
				return Token{}, err
			}
		}
	}
	return result, nil
}

// binaryPriority returns the binding power of a binary operator, or 0 if
// tok is not one.
func binaryPriority(tok Token) int {
	if tok.Type != PP_PUNCTUATOR {
		return 0
	}
	switch tok.Punct() {
	case "*", "/", "%":
		return 11
	case "+", "-":
		return 10
	case "<<", ">>":
		return 9
	case "<", ">", "<=", ">=":
		return 8
	case "==", "!=":
		return 7
	case "&":
		return 6
	case "^":
		return 5
	case "|":
		return 4
	case "&&":
		return 3
	case "||":
		return 2
	case "?":
		return 1
	}
	return 0
}

const unaryPriority = 11

// evalExpr parses operators binding tighter than priority, by precedence
// climbing.
func (p *Preprocessor) evalExpr(priority int) (int64, error) {
	lhs, ok, err := p.evalUnary()
	if err != nil || !ok {
		return 0, err
	}

	for {
		op, err := p.exprToken()
		if err != nil {
			return 0, err
		}
		pri := binaryPriority(op)
		if pri == 0 || priority >= pri {
			p.exprUntoken(op)
			return lhs, nil
		}
		if op.Is("?") {
			return 0, p.exprError(op, "Unexpected operator "+op.Text)
		}

		unused := (op.Is("&&") && lhs == 0) || (op.Is("||") && lhs != 0)
		if unused {
			p.expr.skip++
		}
		rhs, err := p.evalExpr(pri)
		if unused {
			p.expr.skip--
		}
		if err != nil {
			return 0, err
		}

		switch op.Punct() {
		case "/":
			if rhs == 0 {
				if err := p.divisionByZero(op, "Division by zero"); err != nil {
					return 0, err
				}
				lhs = 0
			} else {
				lhs /= rhs
			}
		case "%":
			if rhs == 0 {
				if err := p.divisionByZero(op, "Modulus by zero"); err != nil {
					return 0, err
				}
				lhs = 0
			} else {
				lhs %= rhs
			}
		case "*":
			lhs *= rhs
		case "+":
			lhs += rhs
		case "-":
			lhs -= rhs
		case "<<":
			lhs <<= uint64(rhs)
		case ">>":
			lhs >>= uint64(rhs)
		case "<":
			lhs = boolInt(lhs < rhs)
		case ">":
			lhs = boolInt(lhs > rhs)
		case "<=":
			lhs = boolInt(lhs <= rhs)
		case ">=":
			lhs = boolInt(lhs >= rhs)
		case "==":
			lhs = boolInt(lhs == rhs)
		case "!=":
			lhs = boolInt(lhs != rhs)
		case "&":
			lhs &= rhs
		case "^":
			lhs ^= rhs
		case "|":
			lhs |= rhs
		case "&&":
			lhs = boolInt(lhs != 0 && rhs != 0)
		case "||":
			lhs = boolInt(lhs != 0 || rhs != 0)
		default:
			return 0, &InternalError{Msg: fmt.Sprintf("unhandled binary operator %q", op.Text)}
		}
	}
}

func (p *Preprocessor) divisionByZero(op Token, msg string) error {
	if p.expr.skip > 0 {
		return nil
	}
	return p.exprError(op, msg)
}

// evalUnary parses a primary expression with its prefix operators. ok is
// false if the operand was malformed and the error has been reported.
func (p *Preprocessor) evalUnary() (int64, bool, error) {
	tok, err := p.exprToken()
	if err != nil {
		return 0, false, err
	}
	switch {
	case tok.Is("("):
		v, err := p.evalExpr(0)
		if err != nil {
			return 0, false, err
		}
		closing, err := p.exprToken()
		if err != nil {
			return 0, false, err
		}
		if !closing.Is(")") {
			p.exprUntoken(closing)
			return 0, false, p.exprError(closing, "Missing ) in expression. Got "+describe(closing))
		}
		return v, true, nil
	case tok.Is("~"):
		v, err := p.evalExpr(unaryPriority)
		return ^v, err == nil, err
	case tok.Is("!"):
		v, err := p.evalExpr(unaryPriority)
		return boolInt(v == 0), err == nil, err
	case tok.Is("-"):
		v, err := p.evalExpr(unaryPriority)
		return -v, err == nil, err
	case tok.Is("+"):
		v, err := p.evalExpr(unaryPriority)
		return v, err == nil, err
	case tok.Type == PP_NUMBER:
		nv, _ := tok.Value.(NumericValue)
		if nv.IsFloat() {
			return 0, false, p.exprError(tok, "Floating point literal in expression: "+tok.Text)
		}
		v, err := nv.Int64()
		if err != nil {
			return 0, false, p.exprError(tok, "Integer constant is too large: "+tok.Text)
		}
		return v, true, nil
	case tok.Type == PP_CHAR_CONST:
		v, _ := tok.Value.(int64)
		return v, true, nil
	case tok.Type == PP_IDENTIFIER:
		if p.warnings.Has(WarnUndef) {
			msg := fmt.Sprintf("Undefined token '%s' encountered in conditional.", tok.Text)
			if err := p.warningTok(tok, msg); err != nil {
				return 0, false, err
			}
		}
		return 0, true, nil
	}
	p.exprUntoken(tok)
	return 0, false, p.exprError(tok, "Bad token in expression: "+describe(tok))
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
