package scene

// Material is the appearance state of a mesh. Colors are 0xRRGGBB.
type Material struct {
	Name              string  `json:"name"`
	Color             uint32  `json:"color"`
	Emissive          uint32  `json:"emissive"`
	EmissiveIntensity float64 `json:"emissiveIntensity"`
	Opacity           float64 `json:"opacity"`
	Transparent       bool    `json:"transparent"`
	Disposed          bool    `json:"-"`
}

// NewMaterial returns an opaque material.
func NewMaterial(name string, color uint32) *Material {
	return &Material{Name: name, Color: color, Opacity: 1}
}

// Clone returns an independent copy.
func (m *Material) Clone() *Material {
	c := *m
	c.Disposed = false
	return &c
}

// Dispose marks the material released.
func (m *Material) Dispose() { m.Disposed = true }
