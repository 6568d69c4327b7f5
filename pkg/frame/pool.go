package frame

import "sync"

// Pool recycles detached frames of one size, so that copying frames out of
// a capturer at a steady rate does not allocate.
type Pool struct {
	mu      sync.Mutex
	images  []*Image
	maxSize int
	width   int
	height  int
	format  PixelFormat
}

// NewPool creates a pool for width x height frames in format, holding at
// most poolSize idle images.
func NewPool(width, height int, format PixelFormat, poolSize int) *Pool {
	p := &Pool{
		maxSize: poolSize,
		width:   width,
		height:  height,
		format:  format,
		images:  make([]*Image, 0, poolSize),
	}
	for i := 0; i < poolSize; i++ {
		p.images = append(p.images, p.alloc())
	}
	return p
}

// Get returns an idle image or allocates a new one.
func (p *Pool) Get() *Image {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.images) > 0 {
		m := p.images[len(p.images)-1]
		p.images = p.images[:len(p.images)-1]
		m.Seq = 0
		return m
	}
	return p.alloc()
}

// Put returns an image to the pool.
func (p *Pool) Put(m *Image) {
	if m == nil || m.pool != p {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.images) < p.maxSize {
		p.images = append(p.images, m)
	}
	// Otherwise let GC handle it
}

// Copy detaches src into a pooled image. A frame of a different size than
// the pool's is detached without the pool.
func (p *Pool) Copy(src *Image) *Image {
	if src.Width != p.width || src.Height != p.height || len(src.Pix) != p.width*p.height*4 {
		return src.Detach()
	}
	m := p.Get()
	copy(m.Pix, src.Pix)
	m.Stride = src.Stride
	m.Format = src.Format
	m.Seq = src.Seq
	return m
}

func (p *Pool) alloc() *Image {
	return &Image{
		Pix:    make([]byte, p.width*p.height*4),
		Stride: p.width * 4,
		Width:  p.width,
		Height: p.height,
		Format: p.format,
		pool:   p,
	}
}
