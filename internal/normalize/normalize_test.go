package normalize

import (
	"reflect"
	"testing"
)

func TestSectors(t *testing.T) {
	got := Sectors("flamenco, artes escénicas, cultura, turismo cultural")
	want := []string{"Cultura y artes", "Turismo"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Sectors() = %v, want %v", got, want)
	}
}

func TestSectorsEmpty(t *testing.T) {
	if got := Sectors(""); got != nil {
		t.Fatalf("Sectors(\"\") = %v, want nil", got)
	}
}

func TestInstrumentPrefersLLMSuggestion(t *testing.T) {
	got := Instrument("subvención directa nominativa vía convenio", "Subvención directa nominativa")
	if got != "Subvención directa nominativa" {
		t.Fatalf("Instrument() = %q", got)
	}
}

func TestInstrumentFallsBackToRaw(t *testing.T) {
	got := Instrument("concesión directa sin más trámite", "")
	if got != "Concesión directa" {
		t.Fatalf("Instrument() = %q, want Concesión directa", got)
	}
}

func TestBeneficiaryTypes(t *testing.T) {
	got := BeneficiaryTypes("Fundación Pública Local")
	want := []string{"Fundación"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("BeneficiaryTypes() = %v, want %v", got, want)
	}
}

func TestInferNUTSCodePrefersMostSpecific(t *testing.T) {
	got := InferNUTSCode("Cádiz, Jerez de la Frontera")
	if got != "ES612" {
		t.Fatalf("InferNUTSCode() = %q, want ES612", got)
	}
}

func TestInferNUTSCodeNoMatch(t *testing.T) {
	if got := InferNUTSCode("en un lugar sin nombre"); got != "" {
		t.Fatalf("InferNUTSCode() = %q, want empty", got)
	}
}

func TestInferNUTSCodeFallsBackToRegion(t *testing.T) {
	got := InferNUTSCode("en la comunidad de Extremadura")
	if got != "ES43" {
		t.Fatalf("InferNUTSCode() = %q, want ES43", got)
	}
}
