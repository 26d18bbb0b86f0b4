package playbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noetl/noetl/internal/model"
)

const samplePlaybook = `
metadata:
  name: fetch-and-notify
  path: examples/fetch-and-notify
  version: "1"
workload:
  url: https://api.example.com/items
workflow:
  - step: start
    tool:
      - fetch:
          kind: http
          method: GET
          url: "{{ workload.url }}"
          spec:
            timeout: 30
            policy:
              rules:
                - then:
                    do: continue
    next:
      spec:
        mode: exclusive
      arcs:
        - step: notify
          when: "outcome.status == 'ok'"
        - step: end
  - step: notify
    tool:
      - send:
          kind: http
          method: POST
          url: https://hooks.example.com/notify
`

func TestLoadParsesStepsAndTasks(t *testing.T) {
	pb, err := Load([]byte(samplePlaybook))
	require.NoError(t, err)

	assert.Equal(t, "fetch-and-notify", pb.Metadata.Name)
	require.Len(t, pb.Workflow, 3) // start, notify, implicit end

	start := StepByName(pb, "start")
	require.NotNil(t, start)
	require.Len(t, start.Tool, 1)
	assert.Equal(t, "fetch", start.Tool[0].Label)
	assert.Equal(t, "http", start.Tool[0].Kind)
	assert.Equal(t, "GET", start.Tool[0].Config["method"])
	assert.Equal(t, 30, start.Tool[0].Spec.Timeout)
	require.Len(t, start.Tool[0].Spec.Policy.Rules, 1)
	assert.Equal(t, model.ActionContinue, start.Tool[0].Spec.Policy.Rules[0].Then.Do)

	require.NotNil(t, start.Next)
	assert.Equal(t, model.RouterExclusive, start.Next.Spec.Mode)
	require.Len(t, start.Next.Arcs, 2)
	assert.Equal(t, "notify", start.Next.Arcs[0].Step)
}

func TestLoadInjectsImplicitEnd(t *testing.T) {
	pb, err := Load([]byte(samplePlaybook))
	require.NoError(t, err)
	end := StepByName(pb, EndStepName)
	require.NotNil(t, end)
}

func TestLoadRejectsUndefinedArcTarget(t *testing.T) {
	bad := `
metadata:
  name: broken
  path: x
workflow:
  - step: start
    next:
      arcs:
        - step: nowhere
`
	_, err := Load([]byte(bad))
	require.Error(t, err)
}

func TestLoadRejectsDuplicateStepNames(t *testing.T) {
	bad := `
metadata:
  name: broken
  path: x
workflow:
  - step: start
  - step: start
`
	_, err := Load([]byte(bad))
	require.Error(t, err)
}
