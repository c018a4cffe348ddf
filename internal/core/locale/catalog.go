package locale

import "github.com/hay-kot/chatwidget/internal/core/fallback"

var portuguese = Entry{
	Tag:         "pt",
	BotName:     "Assistente Virtual",
	WelcomeText: "👋 Olá! Como posso ajudar?",
	Placeholder: "Digite sua mensagem...",
	QuickReplies: []string{
		"Como funciona?",
		"Quais são os preços?",
		"Quero uma demonstração",
		"Falar com atendente",
	},
	QuickRepliesLabel: "Perguntas rápidas:",
	EscalateLabel:     "Continue no WhatsApp",
	OnlineLabel:       "Online agora",
	TimeFormat:        "15:04",
	FallbackRules: []fallback.Spec{
		{
			Name:     "meeting",
			Keywords: []string{"reunião", "demonstração"},
			Reply:    "Ótimo! Vou conectar você com nossa equipe. Clique no botão do WhatsApp! 🗓️",
		},
		{
			Name:     "price",
			Keywords: []string{"preço", "valor"},
			Reply:    "Temos diferentes planos para atender sua necessidade. Entre em contato para um orçamento personalizado! 💰",
		},
	},
	FallbackDefault: "Nossa equipe pode ajudar melhor. Que tal continuar no WhatsApp? 😊",
}

var english = Entry{
	Tag:         "en",
	BotName:     "Virtual Assistant",
	WelcomeText: "👋 Hello! How can I help?",
	Placeholder: "Type your message...",
	QuickReplies: []string{
		"How does it work?",
		"What are the prices?",
		"I want a demo",
		"Talk to an agent",
	},
	QuickRepliesLabel: "Quick questions:",
	EscalateLabel:     "Continue on WhatsApp",
	OnlineLabel:       "Online now",
	TimeFormat:        "3:04 PM",
	FallbackRules: []fallback.Spec{
		{
			Name:     "meeting",
			Keywords: []string{"meeting", "demo"},
			Reply:    "Great! I'll connect you with our team. Tap the WhatsApp button! 🗓️",
		},
		{
			Name:     "price",
			Keywords: []string{"price", "cost", "value"},
			Reply:    "We have different plans to fit your needs. Get in touch for a custom quote! 💰",
		},
	},
	FallbackDefault: "Our team can help you better. How about continuing on WhatsApp? 😊",
}

var spanish = Entry{
	Tag:         "es",
	BotName:     "Asistente Virtual",
	WelcomeText: "👋 ¡Hola! ¿Cómo puedo ayudar?",
	Placeholder: "Escribe tu mensaje...",
	QuickReplies: []string{
		"¿Cómo funciona?",
		"¿Cuáles son los precios?",
		"Quiero una demostración",
		"Hablar con un agente",
	},
	QuickRepliesLabel: "Preguntas rápidas:",
	EscalateLabel:     "Continúa en WhatsApp",
	OnlineLabel:       "En línea ahora",
	TimeFormat:        "15:04",
	FallbackRules: []fallback.Spec{
		{
			Name:     "meeting",
			Keywords: []string{"reunión", "demostración"},
			Reply:    "¡Genial! Te conectaré con nuestro equipo. ¡Haz clic en el botón de WhatsApp! 🗓️",
		},
		{
			Name:     "price",
			Keywords: []string{"precio", "valor"},
			Reply:    "Tenemos diferentes planes para tu necesidad. ¡Contáctanos para un presupuesto personalizado! 💰",
		},
	},
	FallbackDefault: "Nuestro equipo puede ayudarte mejor. ¿Qué tal continuar en WhatsApp? 😊",
}
