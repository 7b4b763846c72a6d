package nebula

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"memexia-backend/domain/graph"
)

// timeLayout is the persisted timestamp format
const timeLayout = time.RFC3339Nano

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// spaceNameForKB converts a knowledge base id to a valid space name.
func spaceNameForKB(kbID string) string {
	return "kb_" + unsafeNameChars.ReplaceAllString(kbID, "_")
}

// escapeString escapes a value for interpolation into an nGQL string
// literal. The protocol has no parameterized-query path, so every
// interpolated value must pass through here.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return s
}

func createSpaceStmt(spaceName string) string {
	return fmt.Sprintf(
		"CREATE SPACE IF NOT EXISTS `%s` (partition_num=10, replica_factor=1, vid_type=FIXED_STRING(64));",
		spaceName)
}

func useSpaceStmt(spaceName string) string {
	return fmt.Sprintf("USE `%s`;", spaceName)
}

func describeTagStmt() string {
	return "DESCRIBE TAG Node;"
}

func createTagStmt() string {
	return `CREATE TAG IF NOT EXISTS Node (
		content string,
		node_type string,
		created_at string,
		updated_at string
	);`
}

func createEdgeTypeStmt() string {
	return `CREATE EDGE IF NOT EXISTS RELATED (
		relation_type string,
		weight int
	);`
}

func describeSpaceStmt(spaceName string) string {
	return fmt.Sprintf("DESCRIBE SPACE `%s`;", spaceName)
}

func dropSpaceStmt(spaceName string) string {
	return fmt.Sprintf("DROP SPACE IF EXISTS `%s`;", spaceName)
}

func insertVertexStmt(node *graph.Node) string {
	ts := escapeString(node.CreatedAt.Format(timeLayout))
	return fmt.Sprintf(
		`INSERT VERTEX Node(content, node_type, created_at, updated_at) VALUES "%s":("%s", "%s", "%s", "%s");`,
		escapeString(node.ID),
		escapeString(node.Content),
		escapeString(node.NodeType),
		ts, ts)
}

func fetchNodeStmt(nodeID string) string {
	return fmt.Sprintf(`FETCH PROP ON Node "%s"
		YIELD id(vertex) as vid,
		      properties(vertex).content as content,
		      properties(vertex).node_type as node_type,
		      properties(vertex).created_at as created_at,
		      properties(vertex).updated_at as updated_at;`,
		escapeString(nodeID))
}

func updateVertexStmt(nodeID string, update graph.NodeUpdate, now time.Time) string {
	setClauses := []string{
		fmt.Sprintf(`updated_at = "%s"`, escapeString(now.Format(timeLayout))),
	}
	if update.Content != nil {
		setClauses = append(setClauses, fmt.Sprintf(`content = "%s"`, escapeString(*update.Content)))
	}
	if update.NodeType != nil {
		setClauses = append(setClauses, fmt.Sprintf(`node_type = "%s"`, escapeString(*update.NodeType)))
	}

	return fmt.Sprintf(`UPDATE VERTEX ON Node "%s" SET %s;`,
		escapeString(nodeID), strings.Join(setClauses, ", "))
}

func deleteVertexStmt(nodeID string) string {
	return fmt.Sprintf(`DELETE VERTEX "%s" WITH EDGE;`, escapeString(nodeID))
}

func deleteVerticesStmt(nodeIDs []string) string {
	quoted := make([]string, len(nodeIDs))
	for i, id := range nodeIDs {
		quoted[i] = fmt.Sprintf(`"%s"`, escapeString(id))
	}
	return fmt.Sprintf("DELETE VERTEX %s WITH EDGE;", strings.Join(quoted, ", "))
}

func insertEdgeStmt(create graph.EdgeCreate) string {
	return fmt.Sprintf(
		`INSERT EDGE RELATED(relation_type, weight) VALUES "%s"->"%s":("%s", %d);`,
		escapeString(create.SourceID),
		escapeString(create.TargetID),
		escapeString(create.RelationType),
		create.Weight)
}

func allNodesStmt() string {
	return `MATCH (n:Node)
		RETURN id(n) as vid,
		       n.Node.content as content,
		       n.Node.node_type as node_type,
		       n.Node.created_at as created_at,
		       n.Node.updated_at as updated_at;`
}

func allEdgesStmt() string {
	return `MATCH (a:Node)-[r:RELATED]->(b:Node)
		RETURN id(a) as source_id,
		       id(b) as target_id,
		       r.relation_type as relation_type,
		       r.weight as weight;`
}

func allNodeIDsStmt() string {
	return `MATCH (n:Node) RETURN id(n) as vid;`
}
