package cell

import (
	"math"
	"math/rand"

	"tinyrnn/pkg/linalg"
	"tinyrnn/pkg/model"
)

// MaxGeneratedChars bounds the character chain when sampling a word.
const MaxGeneratedChars = 200

// minProb keeps the logarithm finite when a probability underflows.
const minProb = 0x1p-1022

// Word is one timestep of the hierarchical model: a word-level recurrence
// plus the character chain spelling the next word.
type Word struct {
	m        *model.Hierarchical
	be       linalg.Backend
	sentinel int

	W, Next int
	// chars is the spelling of the next word framed by sentinels; the chain
	// has n = len(chars)-1 positions and position i predicts chars[i+1].
	chars []int
	n     int

	H      linalg.Vector // word hidden state
	Y      linalg.Vector // distribution over the restricted output vocabulary
	Lambda linalg.Vector // word sensitivity handed to the previous timestep

	hp  []linalg.Vector // character hidden states
	mup []linalg.Vector // character sensitivities
	yp  []linalg.Vector // character distributions

	dc, mc, dw, mw linalg.Vector
}

// NewWord returns a cell for m. sentinel is the character id that frames
// every word.
func NewWord(m *model.Hierarchical, be linalg.Backend, sentinel int) *Word {
	return &Word{
		m:        m,
		be:       be,
		sentinel: sentinel,
		H:        linalg.NewVector(m.WordHidden),
		Y:        linalg.NewVector(m.OutputWords),
		Lambda:   linalg.NewVector(m.WordHidden),
		dc:       linalg.NewVector(m.Chars),
		mc:       linalg.NewVector(m.CharHidden),
		dw:       linalg.NewVector(m.OutputWords),
		mw:       linalg.NewVector(m.WordHidden),
	}
}

// grow makes room for n chain positions. Buffers are kept between windows.
func (c *Word) grow(n int) {
	for len(c.hp) < n {
		c.hp = append(c.hp, linalg.NewVector(c.m.CharHidden))
		c.mup = append(c.mup, linalg.NewVector(c.m.CharHidden))
		c.yp = append(c.yp, linalg.NewVector(c.m.Chars))
	}
}

// Load sets the input word, the restricted id of the next word and the
// character ids spelling the next word.
func (c *Word) Load(w, next int, spelling []int) {
	c.W, c.Next = w, next
	c.chars = append(c.chars[:0], c.sentinel)
	c.chars = append(c.chars, spelling...)
	c.chars = append(c.chars, c.sentinel)
	c.n = len(spelling) + 1
	c.grow(c.n)
}

// Positions returns the number of character predictions, the spelling
// length plus the closing sentinel.
func (c *Word) Positions() int { return c.n }

// LastChar is the character hidden state carried into the next word.
func (c *Word) LastChar() linalg.Vector { return c.hp[c.n-1] }

// FirstChar and FirstMu are the right-boundary inputs of the previous
// word's backward pass.
func (c *Word) FirstChar() linalg.Vector { return c.hp[0] }
func (c *Word) FirstMu() linalg.Vector   { return c.mup[0] }

func (c *Word) wordHidden(HPrev linalg.Vector) {
	c.H.Row(c.m.Aw.W, c.W)
	c.be.MatrixVector(c.H, 1, c.m.Rw.W, HPrev, 1)
	c.H.Sigmoid()
}

func (c *Word) charHidden(i, ch int, prev linalg.Vector) {
	h := c.hp[i]
	h.Row(c.m.Ac.W, ch)
	c.be.MatrixVector(h, 1, c.m.Rc.W, prev, 1)
	c.be.MatrixVector(h, 1, c.m.Q.W, c.H, 1)
	h.Sigmoid()
	c.be.MatrixVector(c.yp[i], 1, c.m.Uc.W, h, 0)
	c.yp[i].SoftMax()
}

// Forward runs the word step and its character chain on the loaded data.
// It returns the word-level entropy (zero when the word output is disabled)
// and the summed character entropy, both in bits.
func (c *Word) Forward(HPrev, hPrev linalg.Vector) (wordBits, charBits float64) {
	c.wordHidden(HPrev)
	if c.m.WordOutputEnabled() {
		c.be.MatrixVector(c.Y, 1, c.m.Uw.W, c.H, 0)
		c.Y.SoftMax()
		wordBits = -math.Log2(c.Y[c.Next] + minProb)
	}
	prev := hPrev
	for i := 0; i < c.n; i++ {
		c.charHidden(i, c.chars[i], prev)
		charBits -= math.Log2(c.yp[i][c.chars[i+1]] + minProb)
		prev = c.hp[i]
	}
	return wordBits, charBits
}

// Backward accumulates the gradients of this timestep. HNext and lambdaNext
// are the next word's hidden state and sensitivity; hNextChar0 and
// muNextChar0 are the next word's first character hidden state and
// sensitivity. All four are zero at the window's right edge.
func (c *Word) Backward(HPrev, hPrevChar, HNext, lambdaNext, hNextChar0, muNextChar0 linalg.Vector) {
	m, be := c.m, c.be
	alpha := m.Alpha
	c.Lambda.Fill(0)

	for i := c.n - 1; i >= 0; i-- {
		if i == c.n-1 {
			c.mc.Copy(hNextChar0)
			c.mc.SigmoidDerivativeFactor()
			c.mc.TimesInPlace(muNextChar0)
		} else {
			c.mc.Copy(c.hp[i+1])
			c.mc.SigmoidDerivativeFactor()
			c.mc.TimesInPlace(c.mup[i+1])
		}

		c.dc.OneHotMinus(c.chars[i+1], c.yp[i])
		c.dc.Scale((1 - alpha) / math.Ln2)

		be.MatrixTVector(c.mup[i], 1, m.Uc.W, c.dc, 0)
		be.MatrixTVector(c.mup[i], 1, m.Rc.W, c.mc, 1)

		// Position i+1 of this word: its coupling, recurrence and
		// embedding terms. The last position's successor belongs to the
		// next word and is accounted for there.
		if i < c.n-1 {
			be.MatrixTVector(c.Lambda, 1, m.Q.W, c.mc, 1)
			be.OuterAccumulate(m.Q.G, -1, c.mc, c.H)
			be.OuterAccumulate(m.Rc.G, -1, c.mc, c.hp[i])
			m.Ac.G.AddRow(c.chars[i+1], -1, c.mc)
		}
		be.OuterAccumulate(m.Uc.G, -1, c.dc, c.hp[i])
	}

	c.mw.Copy(HNext)
	c.mw.SigmoidDerivativeFactor()
	c.mw.TimesInPlace(lambdaNext)
	be.MatrixTVector(c.Lambda, 1, m.Rw.W, c.mw, 1)

	if m.WordOutputEnabled() {
		c.dw.OneHotMinus(c.Next, c.Y)
		c.dw.Scale(alpha / math.Ln2)
		be.MatrixTVector(c.Lambda, 1, m.Uw.W, c.dw, 1)
		be.OuterAccumulate(m.Uw.G, -1, c.dw, c.H)
	}

	// First character position.
	c.mc.Copy(c.hp[0])
	c.mc.SigmoidDerivativeFactor()
	c.mc.TimesInPlace(c.mup[0])
	be.MatrixTVector(c.Lambda, 1, m.Q.W, c.mc, 1)
	m.Ac.G.AddRow(c.chars[0], -1, c.mc)
	be.OuterAccumulate(m.Q.G, -1, c.mc, c.H)
	be.OuterAccumulate(m.Rc.G, -1, c.mc, hPrevChar)

	c.mw.Copy(c.H)
	c.mw.SigmoidDerivativeFactor()
	c.mw.TimesInPlace(c.Lambda)
	be.OuterAccumulate(m.Rw.G, -1, c.mw, HPrev)
	m.TouchWord(c.W)
	m.Aw.G.AddRow(c.W, -1, c.mw)
}

// Generate samples the spelling of the word following w, one character at a
// time until the sentinel or MaxGeneratedChars. The returned ids exclude the
// closing sentinel. Afterwards H and LastChar hold the carried state.
func (c *Word) Generate(w int, HPrev, hPrev linalg.Vector, rng *rand.Rand) []int {
	c.W = w
	c.wordHidden(HPrev)
	c.grow(MaxGeneratedChars)

	var out []int
	ch := c.sentinel
	prev := hPrev
	i := 0
	for (i == 0 || ch != c.sentinel) && i < MaxGeneratedChars {
		c.charHidden(i, ch, prev)
		ch = linalg.Sample(rng, c.yp[i])
		if ch != c.sentinel {
			out = append(out, ch)
		}
		prev = c.hp[i]
		i++
	}
	c.n = i
	return out
}
