package extractor

// summaryPromptTemplate requests a concise Spanish summary covering the
// grant's purpose, beneficiaries, amounts, deadlines, and requirements.
const summaryPromptTemplate = `Eres un asistente experto en subvenciones españolas.

Analiza el siguiente texto extraído de una convocatoria de ayudas y genera un resumen en español.

REQUISITOS:
- Máximo 500 palabras
- Escribe en español
- Sé conciso pero completo
- Enfócate en: objetivo, beneficiarios, cuantías, plazos, requisitos
- No inventes información que no esté en el texto
- Si falta información importante, indícalo claramente

TEXTO DE LA CONVOCATORIA:
%s

RESUMEN EN ESPAÑOL:`

// fieldsPromptTemplate requests the full structured field set as JSON. The
// field list mirrors original_source's PDFExtraction schema; unanswerable
// fields must come back null rather than invented.
const fieldsPromptTemplate = `Eres un asistente experto en análisis de subvenciones españolas.

Extrae la siguiente información del texto de la convocatoria y devuélvela en formato JSON.

CAMPOS A EXTRAER: titulo, organismo, ambito_geografico, finalidad_pdf,
beneficiario_nombre, beneficiario_cif, proyecto_nombre, tipos_beneficiario_raw,
sectores_raw, instrumentos_raw, instrumento_normalizado, procedimiento,
region_mencionada, objeto, tipo_administracion_raw, nivel_administracion_raw,
ambito_raw, beneficiarios_descripcion_pdf, requisitos_beneficiarios_pdf,
importe_total_pdf, importe_maximo_pdf, cuantia_min, cuantia_max,
intensidad_ayuda, forma_solicitud_pdf, lugar_presentacion_pdf,
bases_reguladoras_pdf, normativa_pdf, plazo_ejecucion, plazo_justificacion,
plazo_resolucion, forma_justificacion, forma_pago, es_compatible_otras_ayudas.

IMPORTANTE:
- Si un campo no está en el texto, pon null
- Para campos numéricos, extrae SOLO el número en euros (sin símbolos)
- Para fechas, usa formato YYYY-MM-DD si es posible
- Para es_compatible_otras_ayudas, usa true/false (boolean)
- Para instrumento_normalizado, usa uno de: "Subvención directa nominativa",
  "Subvención concurrencia competitiva", "Convenio", "Concesión directa"
- Para procedimiento, usa uno de: "Concesión directa", "Concurrencia competitiva", "Convenio"
- NO inventes información que no está en el texto

TEXTO DE LA CONVOCATORIA:
%s

Responde SOLO con el JSON, sin texto adicional:`
