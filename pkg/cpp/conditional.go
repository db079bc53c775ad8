// conditional.go implements conditional compilation (#if, #ifdef, etc.)
package cpp

import "fmt"

// State tracks one level of nested conditional compilation.
type State struct {
	parentActive bool // every enclosing level is active
	active       bool // the current branch of this level is active
	sawElse      bool // #else has been seen at this level
	loc          SourceLoc
}

func newState(parent *State, loc SourceLoc) *State {
	s := &State{parentActive: true, active: true, loc: loc}
	if parent != nil {
		s.parentActive = parent.parentActive && parent.active
	}
	return s
}

// IsActive reports whether tokens at this level reach the output.
func (s *State) IsActive() bool {
	return s.parentActive && s.active
}

func (s *State) String() string {
	return fmt.Sprintf("parent=%t, active=%t, sawelse=%t", s.parentActive, s.active, s.sawElse)
}

func (p *Preprocessor) pushState(hash Token) {
	p.states = append(p.states, newState(p.state(), hash.Loc))
}

// popState removes the innermost level. The outermost level is never
// removed.
func (p *Preprocessor) popState(tok Token) error {
	if len(p.states) <= 1 {
		return p.errorTok(tok, "#endif without #if")
	}
	p.states = p.states[:len(p.states)-1]
	return nil
}

func (p *Preprocessor) state() *State {
	if len(p.states) == 0 {
		return nil
	}
	return p.states[len(p.states)-1]
}

// isActive reports whether output is currently produced.
func (p *Preprocessor) isActive() bool {
	s := p.state()
	return s == nil || s.IsActive()
}

// Depth returns the current conditional nesting depth. It is zero outside
// any #if.
func (p *Preprocessor) Depth() int {
	return len(p.states) - 1
}

// doIf handles #if. The condition is evaluated only if the enclosing level
// is active.
func (p *Preprocessor) doIf(hash Token) (Token, error) {
	p.pushState(hash)
	if !p.isActive() {
		return p.skipline(false)
	}
	v, nl, err := p.evalCondition()
	if err != nil {
		return Token{}, err
	}
	p.state().active = v != 0
	return nl, nil
}

// doIfdef handles #ifdef and, with negate set, #ifndef.
func (p *Preprocessor) doIfdef(hash Token, negate bool) (Token, error) {
	p.pushState(hash)
	if !p.isActive() {
		return p.skipline(false)
	}
	tok, err := p.sourceTokenNonwhite()
	if err != nil {
		return Token{}, err
	}
	if tok.Type != PP_IDENTIFIER {
		if err := p.errorTok(tok, "Expected identifier, not "+describe(tok)); err != nil {
			return Token{}, err
		}
		return p.skipRest(tok, false)
	}
	p.state().active = p.macros.IsDefined(tok.Text) != negate
	return p.skipline(true)
}

func (p *Preprocessor) doElif(tok Token) (Token, error) {
	if len(p.states) <= 1 {
		if err := p.errorTok(tok, "#elif without #if"); err != nil {
			return Token{}, err
		}
		return p.skipline(false)
	}
	s := p.state()
	switch {
	case s.sawElse:
		if err := p.errorTok(tok, "#elif after #else"); err != nil {
			return Token{}, err
		}
		return p.skipline(false)
	case !s.parentActive:
		return p.skipline(false)
	case s.active:
		// A previous branch ran, so every later branch is dead.
		s.parentActive = false
		s.active = false
		return p.skipline(false)
	}
	v, nl, err := p.evalCondition()
	if err != nil {
		return Token{}, err
	}
	s.active = v != 0
	return nl, nil
}

func (p *Preprocessor) doElse(tok Token) (Token, error) {
	if len(p.states) <= 1 {
		if err := p.errorTok(tok, "#else without #if"); err != nil {
			return Token{}, err
		}
		return p.skipline(false)
	}
	s := p.state()
	if s.sawElse {
		if err := p.errorTok(tok, "#else after #else"); err != nil {
			return Token{}, err
		}
		return p.skipline(false)
	}
	s.sawElse = true
	s.active = !s.active
	return p.skipline(p.warnings.Has(WarnEndifLabels))
}

func (p *Preprocessor) doEndif(tok Token) (Token, error) {
	if err := p.popState(tok); err != nil {
		return Token{}, err
	}
	return p.skipline(p.warnings.Has(WarnEndifLabels))
}
