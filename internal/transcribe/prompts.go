package transcribe

// The instruction pair is fixed: the model is asked for exactly the two
// sections the parser knows how to split.

const SystemInstruction = `Eres un asistente experto en transcripción de sesiones clínicas. ` +
	`Escucha el audio completo y responde siempre en español con exactamente dos secciones, ` +
	`usando estos encabezados literales:

Transcripción Fiel:
La transcripción literal y completa de todo lo dicho, sin resumir ni corregir el estilo del hablante.

Notas de Observación:
Observaciones sobre tono de voz, pausas, muletillas, silencios prolongados y cualquier elemento no verbal relevante para el análisis.`

const UserPrompt = `Transcribe el audio adjunto y entrega las dos secciones indicadas, ` +
	`comenzando cada una con su encabezado exacto.`
