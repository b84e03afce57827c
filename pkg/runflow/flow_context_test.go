package runflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGroupConnectors tests grouping by kind and ordering by Index.
func TestGroupConnectors(t *testing.T) {
	grouped := groupConnectors(counterLoopFixture().connectors)

	pr4rf := grouped["PR4rf"]
	require.NotNil(t, pr4rf)
	require.Len(t, pr4rf.outConds, 2)
	assert.Equal(t, "PR4rf/qVd56", pr4rf.outConds[0].ID)
	assert.Equal(t, "PR4rf/nV4jC", pr4rf.outConds[1].ID)
	assert.Len(t, pr4rf.incoming(), 2)
	assert.Len(t, pr4rf.outgoing(), 2)

	k := groupConnectors(linearFixture().connectors)["K5n6N"]
	ids := make([]string, 0, len(k.inputs))
	for _, c := range k.inputs {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"K5n6N/JCG2R", "K5n6N/Ok8PJ", "K5n6N/XmH61", "K5n6N/hHQNY"}, ids)
}

// TestReadInputValues tests value resolution for each connector flavor.
func TestReadInputValues(t *testing.T) {
	fc := newTestFlowContext(t, linearFixture().params(testRegistry()))
	fc.allVariableValues["bRsjl"] = Box{Value: "global"}
	fc.allVariableValues["K5n6N/content"] = Box{Value: "rendered"}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	tests := []struct {
		name string
		conn string
		want any
	}{
		{"global alias", "K5n6N/JCG2R", "global"},
		{"unconnected input", "K5n6N/Ok8PJ", nil},
		{"edge input", "K5n6N/XmH61", "test 1"},
		{"global without alias", "K5n6N/hHQNY", nil},
		{"own output", "K5n6N/content", "rendered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fc.readInputValues([]Connector{fc.params.Connectors[tt.conn]})
			assert.Equal(t, []any{tt.want}, got)
		})
	}
}

// TestWriteVariableValues tests global routing of written values.
func TestWriteVariableValues(t *testing.T) {
	fc := newTestFlowContext(t, linearFixture().params(testRegistry()))
	outputs := []Connector{
		fc.params.Connectors["Gav0R/FYiVo"],
		fc.params.Connectors["Gav0R/eSv7v"],
	}
	values := VariableValues{
		"Gav0R/FYiVo": {Value: "a"},
		"Gav0R/eSv7v": {Value: "b"},
	}

	fc.mu.Lock()
	fc.allVariableValues = make(VariableValues)
	fc.writeVariableValues(outputs, values, false)
	routed := fc.allVariableValues.Clone()

	fc.allVariableValues = make(VariableValues)
	fc.writeVariableValues(outputs, values, true)
	own := fc.allVariableValues.Clone()
	fc.mu.Unlock()

	assert.Equal(t, VariableValues{"Gav0R/FYiVo": {Value: "a"}, "bRsjl": {Value: "b"}}, routed)
	assert.Equal(t, values, own)
}

// TestLoopDecision tests the continue and break evaluation of a loop body.
func TestLoopDecision(t *testing.T) {
	tests := []struct {
		name          string
		met           []string
		want          loopOutcome
		wantAmbiguous bool
		wantErr       error
	}{
		{name: "continue", met: []string{"G7bsz/XSKf8"}, want: loopContinue},
		{name: "break", met: []string{"G7bsz/HJxkW"}, want: loopBreak},
		{name: "both", met: []string{"G7bsz/XSKf8", "G7bsz/HJxkW"}, want: loopBreak, wantAmbiguous: true},
		{name: "neither", wantErr: ErrNeitherContinueNorBreak},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := newTestFlowContext(t, counterLoopFixture().params(testRegistry()))
			body := newTestGraph(t, fc, "97TDT")
			body.subgraph.Deliver("G7bsz", "G7bsz/XSKf8", "PR4rf/nV4jC")
			body.subgraph.Deliver("G7bsz", "G7bsz/HJxkW", "PR4rf/qVd56")
			for _, id := range tt.met {
				body.states.ConnectorStates[id] = ConnectorMet
			}

			fc.mu.Lock()
			outcome, loopFinishID, ambiguous, err := fc.loopDecision(body)
			fc.mu.Unlock()

			assert.Equal(t, "G7bsz", loopFinishID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome)
			assert.Equal(t, tt.wantAmbiguous, ambiguous)
		})
	}
}

// TestLoopDecision_UndeliveredCondition tests that a MET condition whose
// edges have not all delivered does not count.
func TestLoopDecision_UndeliveredCondition(t *testing.T) {
	fc := newTestFlowContext(t, counterLoopFixture().params(testRegistry()))
	body := newTestGraph(t, fc, "97TDT")
	body.states.ConnectorStates["G7bsz/XSKf8"] = ConnectorMet
	body.subgraph.Deliver("G7bsz", "G7bsz/HJxkW", "PR4rf/qVd56")
	body.states.ConnectorStates["G7bsz/HJxkW"] = ConnectorMet

	fc.mu.Lock()
	outcome, _, ambiguous, err := fc.loopDecision(body)
	fc.mu.Unlock()

	require.NoError(t, err)
	assert.Equal(t, loopBreak, outcome)
	assert.False(t, ambiguous)
}

// TestLoopDecision_MissingConditions tests a LoopFinish with one condition.
func TestLoopDecision_MissingConditions(t *testing.T) {
	f := counterLoopFixture()
	delete(f.connectors, "G7bsz/HJxkW")
	f.edges = f.edges[:len(f.edges)-1]

	fc := newTestFlowContext(t, f.params(testRegistry()))
	body := newTestGraph(t, fc, "97TDT")

	fc.mu.Lock()
	_, _, _, err := fc.loopDecision(body)
	fc.mu.Unlock()

	assert.ErrorIs(t, err, ErrMissingLoopConditions)
}

// TestCreateRunGraphContext tests graph instantiation.
func TestCreateRunGraphContext(t *testing.T) {
	fc := newTestFlowContext(t, counterLoopFixture().params(testRegistry()))

	g1 := newTestGraph(t, fc, "97TDT")
	g2 := newTestGraph(t, fc, "97TDT")
	g1.subgraph.Deliver("vAG7s", "vAG7s/n4gXk", "97TDT/QO3qt")
	g1.states.NodeStates["vAG7s"] = NodeSucceeded

	assert.Equal(t, 1, g2.subgraph.Indegree("vAG7s"))
	assert.Equal(t, NodePending, g2.states.NodeStates["vAG7s"])
	assert.Equal(t, "97TDT", <-g2.queue)

	_, err := fc.createRunGraphContext("missing")
	assert.ErrorIs(t, err, ErrGraphNotFound)
}

// TestCompleteEdges tests queueing of ready nodes and closing of the queue.
func TestCompleteEdges(t *testing.T) {
	fc := newTestFlowContext(t, linearFixture().params(testRegistry()))
	g := newTestGraph(t, fc, RootGraphID)

	visit := func(id string) []string {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		return g.completeEdges(g.createRunNodeContext(id))
	}

	assert.Equal(t, "Gav0R", <-g.queue)
	assert.Equal(t, []string{"K5n6N"}, visit("Gav0R"))
	assert.Equal(t, "K5n6N", <-g.queue)
	assert.Equal(t, []string{"KbeEk"}, visit("K5n6N"))
	assert.Equal(t, "KbeEk", <-g.queue)
	assert.Empty(t, visit("KbeEk"))

	_, open := <-g.queue
	assert.False(t, open)
	assert.Equal(t, int64(0), fc.queuedNodeCount.Load())
}
