package xgeom

import "testing"

func TestFormatCatalog(t *testing.T) {
	tests := []struct {
		format     Format
		vectorSize uint32
		alignment  uint32
		name       string
	}{
		{FormatFloat1D, 4, 4, "FLOAT_1D"},
		{FormatFloat2D, 8, 4, "FLOAT_2D"},
		{FormatFloat3D, 12, 4, "FLOAT_3D"},
		{FormatFloat4D, 16, 4, "FLOAT_4D"},
		{FormatUint8x1Norm, 1, 1, "UINT8_1D_NORMALIZED"},
		{FormatUint8x4Norm, 4, 1, "UINT8_4D_NORMALIZED"},
		{FormatUint8x1, 1, 1, "UINT8_1D"},
		{FormatUint16x1, 2, 2, "UINT16_1D"},
		{FormatUint32x1, 4, 4, "UINT32_1D"},
		{FormatSint8x3Norm, 3, 1, "SINT8_3D_NORMALIZED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.VectorSize(); got != tt.vectorSize {
				t.Errorf("VectorSize() = %d, want %d", got, tt.vectorSize)
			}
			if got := tt.format.Alignment(); got != tt.alignment {
				t.Errorf("Alignment() = %d, want %d", got, tt.alignment)
			}
			if got := tt.format.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
		})
	}

	if Format(200).Valid() {
		t.Error("expected Format(200) to be invalid")
	}
	if got := Format(200).String(); got != "Unknown(200)" {
		t.Errorf("String() = %q, want Unknown(200)", got)
	}
}

func TestPutElement_Quantization(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		value  float64
		want   byte
	}{
		{"unsigned one", FormatUint8x4Norm, 1, 255},
		{"unsigned half", FormatUint8x4Norm, 0.5, 128},
		{"unsigned zero", FormatUint8x1Norm, 0, 0},
		{"unsigned clamps high", FormatUint8x1Norm, 2, 255},
		{"unsigned clamps low", FormatUint8x1Norm, -1, 0},
		{"signed one", FormatSint8x3Norm, 1, 127},
		{"signed minus one", FormatSint8x3Norm, -1, 0x81},
		{"signed half", FormatSint8x3Norm, 0.5, 64},
		{"raw byte", FormatUint8x1, 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b [1]byte
			PutElement(b[:], tt.format, tt.value)
			if b[0] != tt.want {
				t.Errorf("PutElement(%v) = %#x, want %#x", tt.value, b[0], tt.want)
			}
		})
	}
}

func TestElement_RoundTrip(t *testing.T) {
	var b [4]byte

	PutElement(b[:], FormatFloat1D, 1.25)
	if got := Element(b[:], FormatFloat1D); got != 1.25 {
		t.Errorf("float: got %v, want 1.25", got)
	}
	PutElement(b[:], FormatUint16x1, 65535)
	if got := Element(b[:], FormatUint16x1); got != 65535 {
		t.Errorf("uint16: got %v, want 65535", got)
	}
	PutElement(b[:], FormatUint32x1, 70000)
	if got := Element(b[:], FormatUint32x1); got != 70000 {
		t.Errorf("uint32: got %v, want 70000", got)
	}
	PutElement(b[:], FormatSint8x3Norm, -1)
	if got := Element(b[:], FormatSint8x3Norm); got != -1 {
		t.Errorf("sint8: got %v, want -1", got)
	}
}

func TestElementMask_String(t *testing.T) {
	tests := []struct {
		mask ElementMask
		want string
	}{
		{0, "none"},
		{ElementIndex, "index"},
		{ElementPosition | ElementUV, "position|uv"},
		{ElementBoneIndex | ElementBoneWeight | ElementBTN, "bone-index|bone-weight|btn"},
	}
	for _, tt := range tests {
		if got := tt.mask.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.mask, got, tt.want)
		}
	}
}

func TestAlign(t *testing.T) {
	tests := []struct{ n, a, want uint32 }{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 4, 20},
		{7, 1, 7},
		{7, 0, 7},
	}
	for _, tt := range tests {
		if got := Align(tt.n, tt.a); got != tt.want {
			t.Errorf("Align(%d, %d) = %d, want %d", tt.n, tt.a, got, tt.want)
		}
	}
}
