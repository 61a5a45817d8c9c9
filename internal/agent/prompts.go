package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/lifeline/backend/internal/service/llm"
)

const intentClassifierPrompt = `Analyze the user's question and classify it into one of these categories:

1. POLICY_TYPES - Questions about types of life insurance (term, whole, universal, variable, etc.)
2. ELIGIBILITY - Questions about who can get insurance, health requirements, age limits, underwriting
3. CLAIMS - Questions about filing claims, death benefits, beneficiaries, claim process
4. PREMIUMS - Questions about costs, payment options, factors affecting rates
5. COVERAGE - Questions about coverage amounts, what's covered, policy limits
6. GENERAL - General questions, greetings, or unclear intent

User question: {question}

Respond with ONLY the category name (e.g., "POLICY_TYPES").`

const toolSelectionPrompt = `Analyze this user question and determine if specialized tools are needed.

User Question: {question}
Detected Intent: {intent}

Available Tools:
1. Premium Calculator - For calculating insurance costs and premiums
2. Eligibility Checker - For checking if someone qualifies for insurance
3. Policy Comparator - For comparing different policy types

Respond with ONLY "YES" if tools are needed, or "NO" if the question can be answered from knowledge base alone.

Examples:
- "How much would insurance cost for a 35 year old?" -> YES (need calculator)
- "Can I get insurance if I have diabetes?" -> YES (need eligibility checker)
- "What is term life insurance?" -> NO (knowledge base sufficient)
- "Compare term and whole life" -> YES (need comparator)

Your answer (YES or NO):`

const answerGenerationPrompt = `Based on the conversation history and relevant knowledge base information, provide a comprehensive and helpful answer to the user's question.

Conversation Context:
{conversation_history}

Relevant Knowledge Base Information:
{context}

User Question: {question}

Instructions:
- Use the knowledge base information to provide accurate answers
- Reference specific details from the context when relevant
- If the knowledge base doesn't contain enough information, use your general knowledge but indicate uncertainty
- Keep your response clear, concise, and well-structured
- Use bullet points or numbered lists for complex information
- Maintain a friendly and professional tone
- If appropriate, ask follow-up questions to better understand the user's needs

Your answer:`

// textChain renders a template and sends the messages through the gateway.
type textChain = compose.Runnable[map[string]any, string]

func newTextChain(ctx context.Context, name string, tpl prompt.ChatTemplate, gw llm.Gateway, opts ...llm.Option) (textChain, error) {
	chain := compose.NewChain[map[string]any, string]()
	chain.AppendChatTemplate(tpl)
	chain.AppendLambda(compose.InvokableLambda(func(ctx context.Context, msgs []*schema.Message) (string, error) {
		return gw.Invoke(ctx, msgs, opts...)
	}))

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s chain: %w", name, err)
	}
	return runnable, nil
}
