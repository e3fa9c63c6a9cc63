package prompts

// ProactiveDiscovery starts a fresh agent with nothing in memory.
const ProactiveDiscovery = `Start by discovering this system. Chain all relevant discovery commands (OS, kernel, CPU, memory, disks, network) one after another without asking for confirmation in your text, then summarize what you found with one "key: value" line per fact.`

// ResumeInstruction starts an agent that is picking up a saved
// conversation.
const ResumeInstruction = `The agent has restarted. Review the conversation and your memory, then continue with the last task or ask the user what to do next.`

// AutoContinue is sent when the model answered without a question for
// the operator.
const AutoContinue = `Continue. If the current task is complete, use ask_user to ask what to do next.`
